package websockets

// NewAPIGatewayPublisherForTest builds a publisher around an injected client for external tests.
func NewAPIGatewayPublisherForTest(store ConnectionStore, client PostToConnectionAPI) *APIGatewayPublisher {
	return &APIGatewayPublisher{store: store, client: client}
}
