package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/artromone/linkpulse/services/shortener/links"
	"github.com/artromone/linkpulse/services/shortener/models"
	"github.com/artromone/linkpulse/services/shortener/quota"
	"github.com/artromone/linkpulse/services/shortener/redirect"
)

const ServiceName = "shortener.v1.LinkAdmin"

type Redirector interface {
	Visit(ctx context.Context, token string, visit models.Visit) (*redirect.Outcome, error)
	Peek(ctx context.Context, token string) (*redirect.Outcome, error)
}

type LinkCreator interface {
	Create(ctx context.Context, p links.CreateParams) (*models.LinkRecord, error)
}

type UsageService interface {
	Usage(ctx context.Context, ownerID string) (*quota.Usage, error)
	Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error)
}

// LinkAdminServer is the server API for shortener.v1.LinkAdmin. Requests and
// responses are google.protobuf.Struct documents with the same field names
// as the JSON API.
type LinkAdminServer interface {
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CreateLink(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetUsage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResetUsage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type Service struct {
	redirects Redirector
	links     LinkCreator
	usage     UsageService
}

func NewService(redirects Redirector, links LinkCreator, usage UsageService) *Service {
	return &Service{redirects: redirects, links: links, usage: usage}
}

func (s *Service) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	var (
		out *redirect.Outcome
		err error
	)
	if boolField(req, "no_stat") {
		out, err = s.redirects.Peek(ctx, token)
	} else {
		out, err = s.redirects.Visit(ctx, token, models.Visit{
			UserAgent: stringField(req, "user_agent"),
			Referer:   stringField(req, "referer"),
			IP:        callerIP(ctx, stringField(req, "ip")),
		})
	}
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(map[string]any{
		"link_id":      out.Link.ID,
		"original_url": out.Link.OriginalURL,
		"click_count":  out.ClickCount,
	})
}

func (s *Service) CreateLink(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var params links.CreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}

	link, err := s.links.Create(ctx, params)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(link)
}

func (s *Service) GetUsage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requireOwner(req)
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.Usage(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(usage)
}

func (s *Service) ResetUsage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := requireOwner(req)
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.Reset(ctx, owner)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"usage": usage})
}

func requireOwner(req *structpb.Struct) (string, error) {
	owner := stringField(req, "owner_id")
	if owner == "" {
		return "", status.Error(codes.Unauthenticated, "owner_id is required")
	}
	return owner, nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func boolField(req *structpb.Struct, name string) bool {
	return req.GetFields()[name].GetBoolValue()
}

// callerIP prefers an address forwarded by the caller over the peer address.
func callerIP(ctx context.Context, forwarded string) string {
	if forwarded != "" {
		return forwarded
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return ""
	}
	return host
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	var quotaErr *models.QuotaExceededError

	switch {
	case errors.As(err, &quotaErr):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, models.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrAliasTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, models.ErrDeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, models.ErrAliasSpaceExhausted):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func unaryHandler(call func(LinkAdminServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LinkAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LinkAdminServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var LinkAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LinkAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: unaryHandler(LinkAdminServer.Resolve, "Resolve")},
		{MethodName: "CreateLink", Handler: unaryHandler(LinkAdminServer.CreateLink, "CreateLink")},
		{MethodName: "GetUsage", Handler: unaryHandler(LinkAdminServer.GetUsage, "GetUsage")},
		{MethodName: "ResetUsage", Handler: unaryHandler(LinkAdminServer.ResetUsage, "ResetUsage")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shortener/v1/link_admin.proto",
}

func RegisterLinkAdminServer(s grpc.ServiceRegistrar, srv LinkAdminServer) {
	s.RegisterService(&LinkAdminServiceDesc, srv)
}

// Client is a thin caller for shortener.v1.LinkAdmin.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Resolve(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Resolve", in, opts...)
}

func (c *Client) CreateLink(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "CreateLink", in, opts...)
}

func (c *Client) GetUsage(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "GetUsage", in, opts...)
}

func (c *Client) ResetUsage(ctx context.Context, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "ResetUsage", in, opts...)
}
