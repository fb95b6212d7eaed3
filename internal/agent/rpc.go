package agent

import (
	"context"
	"fmt"

	"github.com/ashureev/legalchat/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ReasoningAgentServiceName is the fully-qualified gRPC service of a remote agent.
const ReasoningAgentServiceName = "legalchat.agent.v1.ReasoningAgent"

const (
	methodChat         = "/" + ReasoningAgentServiceName + "/Chat"
	methodGetActions   = "/" + ReasoningAgentServiceName + "/GetActions"
	methodClearActions = "/" + ReasoningAgentServiceName + "/ClearActions"
	methodClearHistory = "/" + ReasoningAgentServiceName + "/ClearHistory"
	methodHealth       = "/" + ReasoningAgentServiceName + "/Health"
)

// ReasoningAgentServer is the server API of a remote reasoning agent.
// Messages are protobuf well-known types so no generated code is required.
type ReasoningAgentServer interface {
	Chat(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	GetActions(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ClearActions(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ClearHistory(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Health(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
}

// RegisterReasoningAgentServer registers srv on s.
func RegisterReasoningAgentServer(s grpc.ServiceRegistrar, srv ReasoningAgentServer) {
	s.RegisterService(&reasoningAgentServiceDesc, srv)
}

var reasoningAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: ReasoningAgentServiceName,
	HandlerType: (*ReasoningAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Chat",
			Handler: unaryHandler(methodChat, func(s ReasoningAgentServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
				return s.Chat(ctx, in)
			}),
		},
		{
			MethodName: "GetActions",
			Handler: unaryHandler(methodGetActions, func(s ReasoningAgentServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.GetActions(ctx, in)
			}),
		},
		{
			MethodName: "ClearActions",
			Handler: unaryHandler(methodClearActions, func(s ReasoningAgentServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.ClearActions(ctx, in)
			}),
		},
		{
			MethodName: "ClearHistory",
			Handler: unaryHandler(methodClearHistory, func(s ReasoningAgentServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.ClearHistory(ctx, in)
			}),
		},
		{
			MethodName: "Health",
			Handler: unaryHandler(methodHealth, func(s ReasoningAgentServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.Health(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "legalchat/agent/v1/agent.proto",
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[In any, PIn interface {
	*In
	proto.Message
}](fullMethod string, call func(ReasoningAgentServer, context.Context, PIn) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PIn(new(In))
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ReasoningAgentServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(PIn))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// actionsToList encodes actions as a list of {action, description, timestamp} structs.
func actionsToList(actions []domain.AgentAction) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(actions))}
	for _, a := range actions {
		s, err := structpb.NewStruct(map[string]any{
			"action":      a.Action,
			"description": a.Description,
			"timestamp":   a.Timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("encode action: %w", err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

// listToActions decodes a list produced by actionsToList. Non-struct entries are skipped.
func listToActions(list *structpb.ListValue) []domain.AgentAction {
	actions := make([]domain.AgentAction, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		f := s.GetFields()
		actions = append(actions, domain.AgentAction{
			Action:      f["action"].GetStringValue(),
			Description: f["description"].GetStringValue(),
			Timestamp:   f["timestamp"].GetStringValue(),
		})
	}
	return actions
}
