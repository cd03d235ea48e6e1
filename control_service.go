// control_service.go: gRPC control service answered by every plugin
//
// The control service carries the calls every plugin kind shares: the host's
// liveness ping, the kill request and the config policy query. Messages are
// protobuf well-known types, so the service descriptor is written by hand and
// needs no generated code.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package snapplugin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlServiceName is the fully qualified gRPC service name.
const ControlServiceName = "snapplugin.Control"

const (
	controlPingMethod            = "/" + ControlServiceName + "/Ping"
	controlKillMethod            = "/" + ControlServiceName + "/Kill"
	controlGetConfigPolicyMethod = "/" + ControlServiceName + "/GetConfigPolicy"
)

// KillReasonField is the request field carrying the host's kill reason.
const KillReasonField = "Reason"

// ControlServer is the server API of the control service.
type ControlServer interface {
	Ping(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Kill(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetConfigPolicy(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ControlServiceDesc describes the control service to grpc.Server.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: controlPingHandler},
		{MethodName: "Kill", Handler: controlKillHandler},
		{MethodName: "GetConfigPolicy", Handler: controlGetConfigPolicyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "snapplugin/control.proto",
}

func controlPingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: controlPingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func controlKillHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Kill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: controlKillMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Kill(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func controlGetConfigPolicyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetConfigPolicy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: controlGetConfigPolicyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetConfigPolicy(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// controlService implements ControlServer for a running plugin.
type controlService struct {
	liveness *LivenessState
	policy   func() (*ConfigPolicy, error)
	kill     func(reason string)
	logger   Logger
}

// Ping records the host's proof of life.
func (s *controlService) Ping(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.liveness.RecordPing()
	return &emptypb.Empty{}, nil
}

// Kill starts the shared shutdown path. The reply is sent before the server
// stops, so the shutdown runs in its own goroutine.
func (s *controlService) Kill(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	reason := ""
	if in != nil {
		if v, ok := in.GetFields()[KillReasonField]; ok {
			reason = v.GetStringValue()
		}
	}
	s.logger.Info("Kill requested by the framework", "reason", reason)
	if s.kill != nil {
		kill := s.kill
		safeGo(s.logger, func() { kill(reason) })
	}
	return &emptypb.Empty{}, nil
}

// GetConfigPolicy returns the plugin's policy as a structured document.
func (s *controlService) GetConfigPolicy(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.policy == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	policy, err := s.policy()
	if err != nil {
		s.logger.Error("Config policy query failed", "error", err)
		return nil, status.Errorf(codes.Internal, "config policy: %v", err)
	}
	out, err := structpb.NewStruct(policy.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "config policy encoding: %v", err)
	}
	return out, nil
}

// ControlClient is the host-side stub of the control service.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient wraps a client connection.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

// Ping sends a liveness ping.
func (c *ControlClient) Ping(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, controlPingMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// Kill asks the plugin to shut down.
func (c *ControlClient) Kill(ctx context.Context, reason string, opts ...grpc.CallOption) error {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		KillReasonField: structpb.NewStringValue(reason),
	}}
	return c.cc.Invoke(ctx, controlKillMethod, in, new(emptypb.Empty), opts...)
}

// GetConfigPolicy fetches the plugin's config policy document.
func (c *ControlClient) GetConfigPolicy(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, controlGetConfigPolicyMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
