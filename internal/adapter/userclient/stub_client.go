package userclient

import "context"

// StubUserClient accepts every user. Selected at composition time for local
// runs and load tests where no user service is deployed.
type StubUserClient struct{}

func NewStubUserClient() *StubUserClient {
	return &StubUserClient{}
}

func (c *StubUserClient) EnsureUserExists(ctx context.Context, userID int64) error {
	return nil
}
