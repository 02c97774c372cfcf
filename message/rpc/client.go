package rpc

import (
	"context"

	"github.com/AdventureDe/LinkIM/message/dto"
	"github.com/AdventureDe/LinkIM/message/repo"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client 其他服务调用私信服务用，错误是 grpc status，可以用 status.Code 判断
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// 记得关闭
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) SendPrivateMessage(ctx context.Context, senderID, receiverID int64, content string) (*dto.SendMessageResult, error) {
	out := new(dto.SendMessageResult)
	in := &SendRequest{SenderID: senderID, ReceiverID: receiverID, Content: content}
	if err := c.conn.Invoke(ctx, fullMethod("SendPrivateMessage"), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnreadCount(ctx context.Context, userID, otherID int64) (int64, error) {
	out := new(dto.UnreadCount)
	in := &UnreadCountRequest{UserID: userID, OtherID: otherID}
	if err := c.conn.Invoke(ctx, fullMethod("UnreadCount"), in, out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ListConversations(ctx context.Context, userID int64, page, pageSize int) ([]*repo.ConversationSummary, error) {
	out := new(ListConversationsResponse)
	in := &ListConversationsRequest{UserID: userID, Page: page, PageSize: pageSize}
	if err := c.conn.Invoke(ctx, fullMethod("ListConversations"), in, out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) MarkAsRead(ctx context.Context, readerID, otherID int64) (int64, error) {
	out := new(MarkAsReadResponse)
	in := &MarkAsReadRequest{ReaderID: readerID, OtherID: otherID}
	if err := c.conn.Invoke(ctx, fullMethod("MarkAsRead"), in, out); err != nil {
		return 0, err
	}
	return out.Marked, nil
}
