package server

// QueryResponse is the uniform body of every API reply.
type QueryResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Success wraps data in a successful envelope.
func Success(data any, message string) QueryResponse {
	return QueryResponse{Success: true, Data: data, Message: message}
}

// Failure builds an error envelope with null data.
func Failure(err string) QueryResponse {
	return QueryResponse{Success: false, Error: err}
}

const (
	msgInternal  = "Internal server error"
	msgValidResp = "Model returned a valid response!"
)
