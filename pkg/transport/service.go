package transport

import (
	"context"

	"github.com/hyp3rd/lateralcache/internal/cluster"
	"github.com/hyp3rd/lateralcache/internal/wire"
)

// Service is the cache operation surface exposed to region adapters. It is implemented by
// the live TCPService, by Zombie, and by the middlewares wrapping either.
type Service interface {
	// Update replicates a put.
	Update(ctx context.Context, region, key string, value []byte) error
	// Remove replicates a single key removal.
	Remove(ctx context.Context, region, key string) error
	// RemoveAll replicates a region clear.
	RemoveAll(ctx context.Context, region string) error
	// Get reads one key from the peer.
	Get(ctx context.Context, region, key string) ([]byte, bool, error)
	// GetMatching reads every entry whose key matches the regular expression pattern.
	GetMatching(ctx context.Context, region, pattern string) (map[string][]byte, error)
	// GetMultiple reads several keys, one round trip per key.
	GetMultiple(ctx context.Context, region string, keys []string) (map[string][]byte, error)
	// GetKeySet reads the keys of a region. A nil slice means the peer gave no answer.
	GetKeySet(ctx context.Context, region string) ([]string, error)
	// Dispose releases the connection. It affects every region sharing it.
	Dispose(ctx context.Context, region string) error
}

// Policy gates which operations reach the network.
type Policy struct {
	AllowGet         bool `yaml:"allowGet" json:"allowGet"`
	AllowPut         bool `yaml:"allowPut" json:"allowPut"`
	IssueRemoveOnPut bool `yaml:"issueRemoveOnPut" json:"issueRemoveOnPut"`
}

// TCPService translates Service calls into wire messages sent through a Sender.
type TCPService struct {
	sender   *Sender
	senderID int64
	policy   Policy
}

// NewTCPService wraps sender. senderID tags every outbound message with the local listener identity.
func NewTCPService(sender *Sender, senderID int64, policy Policy) *TCPService {
	return &TCPService{sender: sender, senderID: senderID, policy: policy}
}

// DialService dials endpoint and returns a live service on the new connection.
func DialService(ctx context.Context, endpoint cluster.Endpoint, senderID int64, policy Policy, opts ...SenderOption) (*TCPService, error) {
	sender, err := Dial(ctx, endpoint, opts...)
	if err != nil {
		return nil, err
	}

	return NewTCPService(sender, senderID, policy), nil
}

// Endpoint returns the remote endpoint.
func (s *TCPService) Endpoint() cluster.Endpoint { return s.sender.Endpoint() }

// Sender returns the underlying connection owner.
func (s *TCPService) Sender() *Sender { return s.sender }

// Update sends an UPDATE, or a hashed REMOVE when IssueRemoveOnPut is set. With neither
// AllowPut nor IssueRemoveOnPut it does nothing.
func (s *TCPService) Update(ctx context.Context, region, key string, value []byte) error {
	switch {
	case s.policy.IssueRemoveOnPut:
		return s.sender.Send(ctx, wire.NewHashedRemove(region, key, value, s.senderID))
	case s.policy.AllowPut:
		return s.sender.Send(ctx, wire.NewUpdate(region, key, value, s.senderID))
	default:
		return nil
	}
}

// Remove sends a REMOVE without hash.
func (s *TCPService) Remove(ctx context.Context, region, key string) error {
	return s.sender.Send(ctx, wire.NewRemove(region, key, s.senderID))
}

// RemoveAll sends a REMOVE_ALL.
func (s *TCPService) RemoveAll(ctx context.Context, region string) error {
	return s.sender.Send(ctx, wire.NewRemoveAll(region, s.senderID))
}

// Get sends a GET and waits for the answer. With AllowGet off it returns not found
// without touching the network.
func (s *TCPService) Get(ctx context.Context, region, key string) ([]byte, bool, error) {
	if !s.policy.AllowGet {
		return nil, false, nil
	}

	resp, err := s.sender.SendAndReceive(ctx, wire.NewGet(region, key, s.senderID))
	if err != nil {
		return nil, false, err
	}

	if !resp.Found {
		return nil, false, nil
	}

	return resp.Value, true, nil
}

// GetMatching sends a GET_MATCHING.
func (s *TCPService) GetMatching(ctx context.Context, region, pattern string) (map[string][]byte, error) {
	if !s.policy.AllowGet {
		return map[string][]byte{}, nil
	}

	resp, err := s.sender.SendAndReceive(ctx, wire.NewGetMatching(region, pattern, s.senderID))
	if err != nil {
		return nil, err
	}

	if resp.Entries == nil {
		return map[string][]byte{}, nil
	}

	return resp.Entries, nil
}

// GetMultiple issues one Get per key.
func (s *TCPService) GetMultiple(ctx context.Context, region string, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if !s.policy.AllowGet {
		return out, nil
	}

	for _, key := range keys {
		value, ok, err := s.Get(ctx, region, key)
		if err != nil {
			return out, err
		}

		if ok {
			out[key] = value
		}
	}

	return out, nil
}

// GetKeySet sends a GET_KEYSET.
func (s *TCPService) GetKeySet(ctx context.Context, region string) ([]string, error) {
	resp, err := s.sender.SendAndReceive(ctx, wire.NewGetKeySet(region, s.senderID))
	if err != nil {
		return nil, err
	}

	if resp.Keys == nil {
		return []string{}, nil
	}

	return resp.Keys, nil
}

// Dispose closes the shared connection.
func (s *TCPService) Dispose(_ context.Context, _ string) error {
	return s.sender.Close()
}
