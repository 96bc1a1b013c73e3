package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/notevault/internal/api"
)

// Verifier checks a bearer token and returns its subject.
type Verifier interface {
	Verify(raw string) (string, error)
}

// LoggingUnary logs one line per call. Server-side failures go out at warn.
// Payloads are never logged; they are ciphertext anyway but may be large.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", strings.TrimPrefix(info.FullMethod, "/"+api.ServiceName+"/")),
			zap.Stringer("code", code),
			zap.Duration("took", time.Since(start)),
			zap.String("peer", remoteAddr(ctx)),
		}
		switch code {
		case codes.Internal, codes.Unavailable, codes.Unknown, codes.DeadlineExceeded:
			log.Warn("rpc failed", fields...)
		default:
			log.Info("rpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Error("handler panic",
				zap.String("method", info.FullMethod),
				zap.String("reason", fmt.Sprint(r)),
				zap.Stack("stack"),
			)
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}()
		return next(ctx, req)
	}
}

// AuthUnary verifies "authorization: Bearer <JWT>" and stores the subject in
// the context. Methods listed in public are authorized by the share token in
// the request, so a missing or invalid bearer token there just leaves the
// call anonymous.
func AuthUnary(v Verifier, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]struct{}, len(public))
	for _, m := range public {
		open[m] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		_, isPublic := open[info.FullMethod]
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			if isPublic {
				return next(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		sub, err := v.Verify(tok)
		if err != nil {
			if isPublic {
				return next(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(WithSubject(ctx, sub), req)
	}
}

var errNoBearer = errors.New("no bearer token")

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		scheme, tok, ok := strings.Cut(strings.TrimSpace(v), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			continue
		}
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok, nil
		}
	}
	return "", errNoBearer
}

func remoteAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}
