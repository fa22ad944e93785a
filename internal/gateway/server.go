package gateway

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"sudooom.im.messaging/internal/config"
	"sudooom.im.messaging/internal/identity"
	"sudooom.im.messaging/internal/location"
	"sudooom.im.messaging/internal/metrics"
	imnats "sudooom.im.messaging/internal/nats"
)

// Server 实时通道网关
// 负责 WebTransport 会话生命周期：认证、邮箱绑定、位置注册与清理
type Server struct {
	cfg        *config.Config
	natsClient *imnats.Client
	registry   *location.Registry
	logger     *slog.Logger
	connMgr    *Manager
	handler    *Handler
	wtServer   *webtransport.Server
	wg         sync.WaitGroup
}

func New(cfg *config.Config, natsClient *imnats.Client, resolver identity.Resolver, registry *location.Registry, logger *slog.Logger) *Server {
	connMgr := NewManager()
	publisher := imnats.NewMessagePublisher(natsClient.Conn())
	handler := NewHandler(connMgr, publisher, resolver, registry, cfg.App.NodeID, logger)

	return &Server{
		cfg:        cfg,
		natsClient: natsClient,
		registry:   registry,
		logger:     logger,
		connMgr:    connMgr,
		handler:    handler,
	}
}

func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:        s.cfg.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:       s.cfg.QUIC.KeepAlivePeriod,
		MaxIncomingStreams:    s.cfg.QUIC.MaxIncomingStreams,
		MaxIncomingUniStreams: s.cfg.QUIC.MaxIncomingUniStreams,
		EnableDatagrams:       true, // WebTransport 需要启用数据报支持
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:       s.cfg.Gateway.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: quicConfig,
		},
		CheckOrigin: func(r *http.Request) bool {
			// TODO: 生产环境应该检查 Origin
			return true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webtransport", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session)
	})

	s.wtServer.H3.Handler = mux

	// 订阅 NATS 下行消息
	s.subscribeDownstream()

	s.logger.Info("WebTransport server starting", "addr", s.cfg.Gateway.Addr)

	return s.wtServer.ListenAndServe()
}

func (s *Server) handleSession(ctx context.Context, session *webtransport.Session) {
	defer s.wg.Done()

	c := NewFromWebTransport(session, s.logger)
	s.connMgr.Add(c)
	metrics.ConnectionsActive.Inc()
	defer func() {
		// 连接关闭时清理用户位置并通知核心
		// 断开不是错误状态：邮箱解绑、位置删除，不触及任何会话数据
		if c.UserID() > 0 {
			if err := s.registry.Unregister(ctx, c.UserID(), c.ID()); err != nil {
				s.logger.Error("Failed to unregister user location", "error", err)
			}
			s.handler.SendUserOffline(c)
		}
		s.connMgr.Remove(c.ID())
		metrics.ConnectionsActive.Dec()
		c.Close()
	}()

	// 首个 stream 必须是认证请求
	firstStream, err := session.AcceptStream(ctx)
	if err != nil {
		// Session closed before auth
		return
	}

	if closeCode, err := s.handler.HandleFirstStream(ctx, c, firstStream); err != nil {
		s.logger.Warn("Auth failed, closing session",
			"conn_id", c.ID(),
			"close_code", closeCode,
			"error", err)
		metrics.AuthRejected.WithLabelValues(authRejectReason(closeCode)).Inc()
		if err := session.CloseWithError(webtransport.SessionErrorCode(closeCode), "auth failed"); err != nil {
			s.logger.Error("Failed to close session", "conn_id", c.ID(), "error", err)
		}
		return
	}

	// 认证成功后，同步处理首个流（阻塞直到流关闭）
	// 客户端只会使用这一个双向流发送所有上行帧
	s.handler.HandleStream(ctx, c, firstStream)

	// 流关闭后函数返回，触发 defer 中的清理逻辑
}

func authRejectReason(closeCode int) string {
	switch closeCode {
	case CloseCodeCredentialMissing:
		return "credential_missing"
	case CloseCodeAccountInactive:
		return "account_inactive"
	default:
		return "credential_invalid"
	}
}

func (s *Server) subscribeDownstream() {
	subject := imnats.BuildGatewayDownstreamSubject(s.cfg.App.NodeID)

	s.natsClient.Subscribe(subject, func(data []byte) {
		s.handler.HandleDownstream(data)
	})

	// 订阅广播
	s.natsClient.Subscribe(imnats.SubjectGatewayBroadcast, func(data []byte) {
		s.handler.HandleDownstream(data)
	})
}

func (s *Server) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.QUIC.CertFile != "" && s.cfg.QUIC.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.QUIC.CertFile, s.cfg.QUIC.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"cert_file", s.cfg.QUIC.CertFile,
			"key_file", s.cfg.QUIC.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h3", "webtransport"},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// 开发环境：生成自签名证书
	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	return generateSelfSignedTLSConfig()
}

// ConnManager 返回连接管理器
func (s *Server) ConnManager() *Manager {
	return s.connMgr
}

func (s *Server) Shutdown() {
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
}
