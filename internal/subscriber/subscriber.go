package subscriber

import (
	"sync"

	"github.com/dep2p/go-tcppubsub/internal/bufferpool"
	"github.com/dep2p/go-tcppubsub/internal/executor"
	"github.com/dep2p/go-tcppubsub/pkg/interfaces"
	"github.com/dep2p/go-tcppubsub/pkg/lib/log"
	"github.com/dep2p/go-tcppubsub/pkg/types"
)

// 确保实现接口
var _ interfaces.Subscriber = (*Subscriber)(nil)

// Subscriber 订阅端
//
// 多个会话的容器。一个会话带多个对端表示故障转移；
// 多个会话表示同时订阅多个发布端。
type Subscriber struct {
	exec *executor.Executor
	pool *bufferpool.Pool
	log  *log.LazyLogger

	mu       sync.Mutex
	sessions []*Session
}

// New 创建订阅端
func New(exec *executor.Executor) (*Subscriber, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	return &Subscriber{
		exec: exec,
		pool: bufferpool.New(),
		log:  log.LoggerWithSink("subscriber", exec.Sink()),
	}, nil
}

// AddSession 新建一个会话并立即启动
//
// peers 为故障转移顺序表，callback 由该会话的所有连接共用。
func (s *Subscriber) AddSession(peers []types.Endpoint, callback types.MessageCallback) (interfaces.SubscriberSession, error) {
	sess, err := newSession(s.exec, s.pool, peers, callback)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions = append(s.sessions, sess)
	s.mu.Unlock()
	s.log.Debug("新增订阅会话", "peers", len(peers))

	sess.Start()
	return sess, nil
}

// Sessions 返回当前所有会话的拷贝
func (s *Subscriber) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Cancel 取消所有会话
func (s *Subscriber) Cancel() {
	for _, sess := range s.Sessions() {
		sess.Cancel()
	}
}
