package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// Ensure XDGSCRAMClient implements sarama.SCRAMClient.
var _ sarama.SCRAMClient = (*XDGSCRAMClient)(nil)

// XDGSCRAMClient adapts an xdg-go/scram conversation to sarama.SCRAMClient.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

// Begin starts a new conversation for the given credentials.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step answers one server challenge.
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done reports whether the conversation has completed.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// SHA256 returns a SHA256 hash generator.
func SHA256() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha256.New() }
}

// SHA512 returns a SHA512 hash generator.
func SHA512() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha512.New() }
}

// scramMechanism maps a configured mechanism name to the sarama mechanism
// and a client generator for it.
func scramMechanism(name string) (sarama.SASLMechanism, func() sarama.SCRAMClient, error) {
	var (
		mechanism sarama.SASLMechanism
		hashFn    scram.HashGeneratorFcn
	)

	switch name {
	case "SCRAM-SHA-256":
		mechanism, hashFn = sarama.SASLTypeSCRAMSHA256, SHA256()
	case "SCRAM-SHA-512":
		mechanism, hashFn = sarama.SASLTypeSCRAMSHA512, SHA512()
	default:
		return "", nil, fmt.Errorf("not a SCRAM mechanism: %s", name)
	}

	return mechanism, func() sarama.SCRAMClient {
		return &XDGSCRAMClient{HashGeneratorFcn: hashFn}
	}, nil
}
