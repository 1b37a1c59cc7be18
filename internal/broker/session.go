package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSessionClosed 表示会话在收到预期回报前已被关闭。
var ErrSessionClosed = errors.New("broker: session closed before completion")

// session 承载一次完整的网关会话周期。
//
// 后台读协程把网关回报逐条送入 messages 通道，前台负责排空通道并累积结果，
// 双方只通过通道交换数据，累积结果不存在并发访问。
// 终止回报到达后由一次性定时器延迟断开连接，读协程随之退出并关闭通道。
type session struct {
	conn            net.Conn
	logger          *zap.Logger
	messages        chan message
	group           *errgroup.Group
	disconnectDelay time.Duration

	closeOnce  sync.Once
	closedByUs atomic.Bool
	stopWatch  func() bool
}

const sessionChannelDepth = 256

// dialSession 建立 TCP 连接并发送 startApi 握手。
// 返回时读协程已启动；首条预期回报为 nextValidId。
func dialSession(ctx context.Context, addr string, clientID int64, disconnectDelay time.Duration, logger *zap.Logger) (*session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("broker: 连接网关 %s 失败: %w", addr, err)
	}

	s := &session{
		conn:            conn,
		logger:          logger,
		messages:        make(chan message, sessionChannelDepth),
		disconnectDelay: disconnectDelay,
	}

	// 上层取消时直接关闭连接，读协程随之退出
	s.stopWatch = context.AfterFunc(ctx, s.close)

	group := &errgroup.Group{}
	s.group = group
	group.Go(s.readLoop)

	if err := s.send(message{Type: typeStartAPI, ClientID: clientID}); err != nil {
		s.close()
		_ = s.finish()
		return nil, err
	}

	return s, nil
}

// send 将一条请求写入连接，只允许前台调用。
func (s *session) send(msg message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("broker: 编码请求失败: %w", err)
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("broker: 发送请求失败: %w", err)
	}
	return nil
}

// readLoop 由后台协程运行：逐行解码网关回报并送入通道。
func (s *session) readLoop() error {
	defer close(s.messages)

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		msg, err := decodeMessage(scanner.Bytes())
		if err != nil {
			s.logger.Warn("丢弃无法解码的网关回报", zap.Error(err))
			continue
		}
		s.messages <- msg
	}

	if err := scanner.Err(); err != nil && !s.closedByUs.Load() {
		return fmt.Errorf("broker: 读取网关回报失败: %w", err)
	}
	return nil
}

// scheduleDisconnect 在终止回报之后延迟断开连接，只生效一次。
func (s *session) scheduleDisconnect() {
	time.AfterFunc(s.disconnectDelay, s.close)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		s.closedByUs.Store(true)
		_ = s.conn.Close()
	})
}

// finish 等待读协程退出并回收资源。
// 返回后累积结果可被安全读取。
//
// 前台提前出错时通道里可能还有积压回报，读协程甚至可能阻塞在
// 通道写入上；必须先排空通道，读协程才能观察到连接关闭并退出。
func (s *session) finish() error {
	for range s.messages {
	}
	err := s.group.Wait()
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.close()
	return err
}

// awaitNextValidID 排空通道直到收到起始订单号。
func (s *session) awaitNextValidID() (int64, error) {
	for msg := range s.messages {
		switch msg.Type {
		case typeNextValidID:
			return msg.OrderID, nil
		case typeError:
			s.logVenueError(msg)
		default:
			s.logger.Debug("握手阶段忽略回报", zap.String("type", msg.Type))
		}
	}
	return 0, fmt.Errorf("%w: 未收到 nextValidId", ErrSessionClosed)
}

// logVenueError 记录券商侧错误回报。按约定只记录、不转换为类型化错误；
// 若错误导致终止回报缺失，会话将停在排空阶段直至上层取消。
func (s *session) logVenueError(msg message) {
	s.logger.Error("网关返回错误",
		zap.Int64("req_id", msg.ReqID),
		zap.Int64("code", msg.Code),
		zap.String("message", msg.Message),
	)
}
