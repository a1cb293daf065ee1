// Package daemon serves resolution to an IDE host over gRPC.
package daemon

import (
	"context"
	"errors"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/session"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server answers resolution requests against one analyzer.
type Server struct {
	analyzer       *analyzer.Analyzer
	maxDiagnostics int
	logger         zerolog.Logger
}

type Option func(*Server) *Server

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) *Server {
		s.logger = logger
		return s
	}
}

// WithMaxDiagnostics caps the diagnostics sent for one file.
func WithMaxDiagnostics(n int) Option {
	return func(s *Server) *Server {
		s.maxDiagnostics = n
		return s
	}
}

func NewServer(a *analyzer.Analyzer, options ...Option) *Server {
	s := &Server{
		analyzer:       a,
		maxDiagnostics: config.MaxDiagnosticsSent,
		logger:         zerolog.Nop(),
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

type handler func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unary(method string, h handler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return h(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + config.ResolutionService + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return h(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: config.ResolutionService,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		unary("ResolveFile", (*Server).resolveFile),
		unary("GetDiagnostics", (*Server).getDiagnostics),
		unary("Invalidate", (*Server).invalidate),
	},
	Streams: []grpc.StreamDesc{},
}

// Register adds the resolution service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) resolveFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	file := f["file"].GetStringValue()
	if file == "" {
		return nil, status.Error(codes.InvalidArgument, "file is required")
	}
	module := f["module"].GetStringValue()
	if module == "" {
		m, err := s.analyzer.ModuleOf(file)
		if err != nil {
			return nil, statusOf(err)
		}
		module = m
	}

	var tree *ast.Node
	if text, ok := f["tree"]; ok {
		t, err := decodeTree(file, text.GetStringValue())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if _, err := s.analyzer.Graph().Invalidate(module, session.Change{File: file, Tree: t}); err != nil {
			return nil, statusOf(err)
		}
		tree = t
	} else {
		sess, err := s.analyzer.Graph().GetSession(ctx, module)
		if err != nil {
			return nil, statusOf(err)
		}
		t, ok := sess.Source(file)
		if !ok {
			return nil, status.Errorf(codes.NotFound, "module %s has no file %s", module, file)
		}
		tree = t
	}

	at, err := s.analyzer.ResolveFileIn(ctx, module, tree)
	if err != nil {
		return nil, statusOf(err)
	}
	s.logger.Debug().Str("module", module).Str("file", file).Int("diagnostics", len(at.Diagnostics)).Msg("file resolved")
	return structpb.NewStruct(map[string]any{
		"file":        file,
		"types":       len(at.TypeMap),
		"resolutions": resolutionValues(at),
		"diagnostics": diagnosticValues(s.analyzer.Diagnostics(file), s.maxDiagnostics),
	})
}

func (s *Server) getDiagnostics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	file := req.GetFields()["file"].GetStringValue()
	if file == "" {
		return nil, status.Error(codes.InvalidArgument, "file is required")
	}
	ds := s.analyzer.Diagnostics(file)
	return structpb.NewStruct(map[string]any{
		"file":        file,
		"diagnostics": diagnosticValues(ds, s.maxDiagnostics),
		"truncated":   s.maxDiagnostics > 0 && len(ds) > s.maxDiagnostics,
	})
}

func (s *Server) invalidate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	module := f["module"].GetStringValue()
	if module == "" {
		return nil, status.Error(codes.InvalidArgument, "module is required")
	}
	var changes []session.Change
	var deleted []string
	for _, v := range f["changes"].GetListValue().GetValues() {
		cf := v.GetStructValue().GetFields()
		file := cf["file"].GetStringValue()
		if file == "" {
			return nil, status.Error(codes.InvalidArgument, "change without a file")
		}
		change := session.Change{File: file}
		if text, ok := cf["tree"]; ok {
			tree, err := decodeTree(file, text.GetStringValue())
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			change.Tree = tree
		} else {
			deleted = append(deleted, file)
		}
		changes = append(changes, change)
	}
	affected, err := s.analyzer.Graph().Invalidate(module, changes...)
	if err != nil {
		return nil, statusOf(err)
	}
	s.analyzer.Forget(deleted...)
	s.logger.Info().Str("module", module).Int("changes", len(changes)).Strs("affected", affected).Msg("invalidated")
	return structpb.NewStruct(map[string]any{"affected": stringValues(affected)})
}

// statusOf maps analyzer errors to gRPC status codes.
func statusOf(err error) error {
	var unknownFile *analyzer.UnknownFileError
	var unknownModule *session.UnknownModuleError
	var cycle *session.CycleError
	switch {
	case diagnostics.IsCancelled(err):
		return status.Error(codes.Canceled, err.Error())
	case errors.As(err, &unknownFile), errors.As(err, &unknownModule):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &cycle):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
