package producers

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTopicConn struct {
	mock.Mock
}

func (m *MockTopicConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	args := m.Called(topics)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]kafka.Partition), args.Error(1)
}

func (m *MockTopicConn) CreateTopics(topics ...kafka.TopicConfig) error {
	return m.Called(topics).Error(0)
}

func (m *MockTopicConn) DeleteTopics(topics ...string) error {
	return m.Called(topics).Error(0)
}

func (m *MockTopicConn) Close() error {
	return m.Called().Error(0)
}

func newTestAdmin(conn *MockTopicConn) *TopicAdmin {
	return &TopicAdmin{
		logger:            newTestLogger(),
		dial:              func(context.Context) (topicConn, error) { return conn, nil },
		numPartitions:     4,
		replicationFactor: 1,
	}
}

func TestTopicAdmin_EnsureTopics(t *testing.T) {
	conn := new(MockTopicConn)
	admin := newTestAdmin(conn)

	conn.On("ReadPartitions", []string{"transactions.nedbank"}).Return([]kafka.Partition{{Topic: "transactions.nedbank"}}, nil).Once()
	conn.On("ReadPartitions", []string{"transactions.default"}).Return(nil, errors.New("unknown topic")).Times(partitionReadAttempts)
	conn.On("CreateTopics", []kafka.TopicConfig{{Topic: "transactions.default", NumPartitions: 4, ReplicationFactor: 1}}).Return(nil).Once()
	conn.On("Close").Return(nil).Once()

	require.NoError(t, admin.EnsureTopics(context.Background(), "transactions.nedbank", "transactions.default"))
	conn.AssertExpectations(t)
}

func TestTopicAdmin_RecreateTopics(t *testing.T) {
	t.Run("deletes existing and creates all", func(t *testing.T) {
		conn := new(MockTopicConn)
		admin := newTestAdmin(conn)

		conn.On("ReadPartitions", []string{"q1"}).Return([]kafka.Partition{{Topic: "q1"}}, nil).Once()
		conn.On("ReadPartitions", []string{"q2"}).Return([]kafka.Partition{}, nil).Once()
		conn.On("DeleteTopics", []string{"q1"}).Return(nil).Once()
		conn.On("CreateTopics", []kafka.TopicConfig{
			{Topic: "q1", NumPartitions: 4, ReplicationFactor: 1},
			{Topic: "q2", NumPartitions: 4, ReplicationFactor: 1},
		}).Return(nil).Once()
		conn.On("Close").Return(nil).Once()

		require.NoError(t, admin.RecreateTopics(context.Background(), "q1", "q2"))
		conn.AssertExpectations(t)
	})

	t.Run("retries while deletion is pending", func(t *testing.T) {
		conn := new(MockTopicConn)
		admin := newTestAdmin(conn)

		conn.On("ReadPartitions", []string{"q1"}).Return([]kafka.Partition{{Topic: "q1"}}, nil).Once()
		conn.On("DeleteTopics", []string{"q1"}).Return(nil).Once()
		conn.On("CreateTopics", mock.Anything).Return(kafka.TopicAlreadyExists).Once()
		conn.On("CreateTopics", mock.Anything).Return(nil).Once()
		conn.On("Close").Return(nil).Once()

		require.NoError(t, admin.RecreateTopics(context.Background(), "q1"))
		conn.AssertExpectations(t)
	})

	t.Run("delete failure", func(t *testing.T) {
		conn := new(MockTopicConn)
		admin := newTestAdmin(conn)

		conn.On("ReadPartitions", []string{"q1"}).Return([]kafka.Partition{{Topic: "q1"}}, nil).Once()
		conn.On("DeleteTopics", []string{"q1"}).Return(errors.New("not controller")).Once()
		conn.On("Close").Return(nil).Once()

		err := admin.RecreateTopics(context.Background(), "q1")
		assert.ErrorContains(t, err, "not controller")
	})

	t.Run("dial failure", func(t *testing.T) {
		admin := &TopicAdmin{
			logger: newTestLogger(),
			dial:   func(context.Context) (topicConn, error) { return nil, errors.New("refused") },
		}
		assert.Error(t, admin.RecreateTopics(context.Background(), "q1"))
	})
}
