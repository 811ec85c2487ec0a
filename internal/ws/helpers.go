package ws

import "github.com/google/uuid"

func NewConnID() string {
	return uuid.NewString()
}
