package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/AdventureDe/LinkIM/message/dto"
	"github.com/AdventureDe/LinkIM/message/errs"
	"github.com/AdventureDe/LinkIM/message/repo"
	"github.com/AdventureDe/LinkIM/message/service"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "linkim.message.MessageService"

// 内部调用方（网关、群聊服务）自己完成鉴权，请求里直接带 user id
type SendRequest struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

type UnreadCountRequest struct {
	UserID  int64 `json:"user_id"`
	OtherID int64 `json:"other_id,omitempty"`
}

type ListConversationsRequest struct {
	UserID   int64 `json:"user_id"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

type ListConversationsResponse struct {
	Conversations []*repo.ConversationSummary `json:"conversations"`
}

type MarkAsReadRequest struct {
	ReaderID int64 `json:"reader_id"`
	OtherID  int64 `json:"other_id"`
}

type MarkAsReadResponse struct {
	Marked int64 `json:"marked"`
}

type MessageServiceServer interface {
	SendPrivateMessage(context.Context, *SendRequest) (*dto.SendMessageResult, error)
	UnreadCount(context.Context, *UnreadCountRequest) (*dto.UnreadCount, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	MarkAsRead(context.Context, *MarkAsReadRequest) (*MarkAsReadResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MessageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SendPrivateMessage", func(s MessageServiceServer, ctx context.Context, in *SendRequest) (any, error) {
			return s.SendPrivateMessage(ctx, in)
		}),
		unary("UnreadCount", func(s MessageServiceServer, ctx context.Context, in *UnreadCountRequest) (any, error) {
			return s.UnreadCount(ctx, in)
		}),
		unary("ListConversations", func(s MessageServiceServer, ctx context.Context, in *ListConversationsRequest) (any, error) {
			return s.ListConversations(ctx, in)
		}),
		unary("MarkAsRead", func(s MessageServiceServer, ctx context.Context, in *MarkAsReadRequest) (any, error) {
			return s.MarkAsRead(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unary 解码请求后交给拦截器链，和 protoc 生成的 handler 做的事一样
func unary[Req any](method string, call func(MessageServiceServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MessageServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessageServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func RegisterMessageServiceServer(s grpc.ServiceRegistrar, srv MessageServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server 把 MessageService 暴露给内部 grpc 调用
type Server struct {
	service *service.MessageService
}

func NewServer(s *service.MessageService) *Server {
	return &Server{service: s}
}

func (s *Server) SendPrivateMessage(ctx context.Context, in *SendRequest) (*dto.SendMessageResult, error) {
	return s.service.SendPrivateMessage(ctx, in.SenderID, in.ReceiverID, in.Content)
}

func (s *Server) UnreadCount(ctx context.Context, in *UnreadCountRequest) (*dto.UnreadCount, error) {
	n, err := s.service.UnreadCount(ctx, in.UserID, in.OtherID)
	if err != nil {
		return nil, err
	}
	return &dto.UnreadCount{UserID: in.UserID, OtherID: in.OtherID, Count: n}, nil
}

func (s *Server) ListConversations(ctx context.Context, in *ListConversationsRequest) (*ListConversationsResponse, error) {
	list, err := s.service.ListConversations(ctx, in.UserID, in.Page, in.PageSize)
	if err != nil {
		return nil, err
	}
	return &ListConversationsResponse{Conversations: list}, nil
}

func (s *Server) MarkAsRead(ctx context.Context, in *MarkAsReadRequest) (*MarkAsReadResponse, error) {
	n, err := s.service.MarkAsRead(ctx, in.ReaderID, in.OtherID)
	if err != nil {
		return nil, err
	}
	return &MarkAsReadResponse{Marked: n}, nil
}

// NewGRPCServer 创建 grpc 服务器并注册 MessageService
func NewGRPCServer(srv MessageServiceServer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(logger))}, opts...)
	g := grpc.NewServer(opts...)
	RegisterMessageServiceServer(g, srv)
	return g
}

// UnaryInterceptor 记录每次调用并把错误转成 grpc status，StorageFailure 的原因只写日志
func UnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err == nil {
			logger.Debug("rpc ok", zap.String("method", info.FullMethod), zap.Duration("cost", time.Since(start)))
			return resp, nil
		}

		st := toStatus(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", st.Code().String()),
			zap.Duration("cost", time.Since(start)),
		}
		if st.Code() == codes.Unavailable {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("rpc rejected", append(fields, zap.String("reason", st.Message()))...)
		}
		return nil, st.Err()
	}
}

func toStatus(err error) *status.Status {
	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		return appErr.GRPCStatus()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err)
	}
	if st, ok := status.FromError(err); ok {
		return st
	}
	return status.New(errs.GRPCCode(errs.KindStorageFailure), errs.BusyMessage)
}
