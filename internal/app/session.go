package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/ClusterCockpit/cc-frontend/internal/logging"
)

const sessionInitQuery = `query SessionInit {
	clusters {
		name
		metricConfig {
			name
			unit { base prefix }
			peak
			normal
			caution
			alert
			timestep
			scope
		}
		filterRanges {
			duration { from to }
			numNodes { from to }
			startTime { from to }
		}
		partitions {
			name
			processorType
			socketsPerNode
			coresPerSocket
			threadsPerCore
			flopRateScalar
			flopRateSimd
			memoryBandwidth
			topology { accelerators { id } }
		}
	}
	tags { id name type }
	%s
}`

type Executor interface {
	Execute(ctx context.Context, op domain.Operation) (domain.Result, error)
}

// SessionState is the state of the session initialization as seen by subscribers
type SessionState struct {
	Fetching bool
	Err      error
	Data     json.RawMessage
}

type subscriber struct {
	callback func(SessionState)
}

type sessionInitData struct {
	Clusters []domain.Cluster `json:"clusters"`
	Tags     []domain.Tag     `json:"tags"`
}

// Session holds the data every view needs before it can render: the clusters
// with their metric configuration and the list of all tags.
type Session struct {
	executor Executor
	document string

	// notifyMu serializes delivery so subscribers observe states in order.
	// Callbacks must not call Subscribe or OnInit.
	notifyMu sync.Mutex

	mu          sync.Mutex
	attempt     chan struct{} // closed when the running attempt finishes, nil while none runs
	done        chan struct{}
	state       SessionState
	clusters    []domain.Cluster
	tags        []domain.Tag
	subscribers []*subscriber
	onInit      []func(SessionState)
}

// NewSession creates a session whose init query also selects extraInitQuery.
// The extra selection must be valid inside the root query selection set.
func NewSession(executor Executor, extraInitQuery string) *Session {
	return &Session{
		executor: executor,
		document: fmt.Sprintf(sessionInitQuery, extraInitQuery),
		done:     make(chan struct{}),
		state:    SessionState{Fetching: true},
	}
}

// Init runs the init query. Only one call executes it at a time, concurrent
// calls wait for its outcome. An attempt abandoned by its caller's context
// does not count, the next call starts over.
func (s *Session) Init(ctx context.Context) error {
	for {
		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			return s.Err()
		default:
		}

		if running := s.attempt; running != nil {
			s.mu.Unlock()
			select {
			case <-running:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		attempt := make(chan struct{})
		s.attempt = attempt
		s.mu.Unlock()

		return s.run(ctx, attempt)
	}
}

func (s *Session) run(ctx context.Context, attempt chan struct{}) error {
	logger := logging.FromContext(ctx)

	result, err := s.executor.Execute(ctx, domain.NewQuery(s.document, nil))
	if err != nil && ctx.Err() != nil {
		logger.WarnContext(ctx, "Session initialization abandoned", slog.String("error", err.Error()))

		s.mu.Lock()
		s.attempt = nil
		s.mu.Unlock()
		close(attempt)

		return fmt.Errorf("failed to initialize session: %w", err)
	}
	if err == nil {
		err = result.Err()
	}

	var data sessionInitData
	if err == nil {
		err = result.Decode(&data)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state.Fetching = false
	if err != nil {
		s.state.Err = fmt.Errorf("failed to initialize session: %w", err)
	} else {
		s.state.Data = result.Data
		s.clusters = data.Clusters
		s.tags = data.Tags
	}
	state := s.state
	s.attempt = nil
	close(s.done)
	close(attempt)
	s.mu.Unlock()

	if state.Err != nil {
		logger.ErrorContext(ctx, "Session initialization failed", slog.String("error", state.Err.Error()))
	} else {
		logger.InfoContext(ctx, "Session initialized", slog.Int("clusters", len(data.Clusters)), slog.Int("tags", len(data.Tags)))
	}

	s.notify(state)

	return state.Err
}

// notify must be called with notifyMu held
func (s *Session) notify(state SessionState) {
	s.mu.Lock()
	subscribers := slices.Clone(s.subscribers)
	onInit := s.onInit
	s.onInit = nil
	s.mu.Unlock()

	for _, sub := range subscribers {
		sub.callback(state)
	}
	for _, callback := range onInit {
		callback(state)
	}
}

// Subscribe calls callback with the current state right away and again when
// initialization completes. Callbacks run in registration order.
func (s *Session) Subscribe(callback func(SessionState)) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	sub := &subscriber{callback: callback}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, sub)
	state := s.state
	s.mu.Unlock()

	callback(state)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(other *subscriber) bool {
			return other == sub
		})
	}
}

// OnInit calls callback once initialization has completed, immediately if it
// already has
func (s *Session) OnInit(callback func(SessionState)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.state.Fetching {
		s.onInit = append(s.onInit, callback)
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()

	callback(state)
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	return s.State().Err
}

// Initialized is closed once the init query has completed, successfully or not
func (s *Session) Initialized() <-chan struct{} {
	return s.done
}

func (s *Session) ready() error {
	if s.state.Fetching {
		return domain.ErrNotInitialized
	}
	if s.state.Err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotInitialized, s.state.Err)
	}
	return nil
}

func (s *Session) Tags() ([]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return slices.Clone(s.tags), nil
}

func (s *Session) Clusters() ([]domain.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return slices.Clone(s.clusters), nil
}

func (s *Session) Cluster(name string) (domain.Cluster, error) {
	clusters, err := s.Clusters()
	if err != nil {
		return domain.Cluster{}, err
	}
	return domain.FindCluster(clusters, name)
}

// MetricConfig looks up the configuration of a metric on a cluster
func (s *Session) MetricConfig(cluster, metric string) (domain.MetricConfig, error) {
	c, err := s.Cluster(cluster)
	if err != nil {
		return domain.MetricConfig{}, err
	}
	return c.Metric(metric)
}

// SearchTags fuzzy searches the tags of the session
func (s *Session) SearchTags(term string) ([]domain.Tag, error) {
	tags, err := s.Tags()
	if err != nil {
		return nil, err
	}
	return domain.FuzzySearchTags(term, tags), nil
}
