// Package grpcapi exposes the notification producers to other services
// over gRPC. Messages are google.protobuf.Struct so producers need no
// generated stubs; field names match the JSON of the HTTP API.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rajyaabhishek/LawX-sub001/internal/apperrors"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
	"github.com/rajyaabhishek/LawX-sub001/internal/models"
	"github.com/rajyaabhishek/LawX-sub001/internal/notifications"
	"github.com/rajyaabhishek/LawX-sub001/internal/observability"
)

const ServiceName = "lawx.realtime.v1.NotificationProducer"

// Producer is the notification engine as seen by remote producers.
type Producer interface {
	Create(ctx context.Context, in notifications.CreateInput) (models.Notification, error)
	NotifyNewCase(ctx context.Context, c notifications.Case) ([]models.Notification, error)
	NotifyCaseApplication(ctx context.Context, c notifications.Case, lawyer notifications.Actor, applicationID string) (*models.Notification, error)
	NotifyApplicationDecision(ctx context.Context, c notifications.Case, lawyerID, applicationID string, accepted bool) (*models.Notification, error)
	NotifyCaseStatusUpdate(ctx context.Context, c notifications.Case, status string, recipients []string) ([]models.Notification, error)
}

// NotificationProducerServer is the server API of ServiceName.
type NotificationProducerServer interface {
	CreateNotification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NotifyNewCase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NotifyCaseApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NotifyApplicationDecision(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NotifyCaseStatusUpdate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type Server struct {
	producer Producer
}

func NewServer(producer Producer) *Server {
	return &Server{producer: producer}
}

// NewGRPCServer builds a grpc.Server with the producer service, the
// standard health service, tracing and request metrics.
func NewGRPCServer(producer Producer) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	RegisterNotificationProducerServer(srv, NewServer(producer))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv, healthSrv
}

func RegisterNotificationProducerServer(s grpc.ServiceRegistrar, srv NotificationProducerServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationProducerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateNotification", NotificationProducerServer.CreateNotification),
		unary("NotifyNewCase", NotificationProducerServer.NotifyNewCase),
		unary("NotifyCaseApplication", NotificationProducerServer.NotifyCaseApplication),
		unary("NotifyApplicationDecision", NotificationProducerServer.NotifyApplicationDecision),
		unary("NotifyCaseStatusUpdate", NotificationProducerServer.NotifyCaseStatusUpdate),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lawx/realtime/v1/notification_producer.proto",
}

type unaryMethod func(NotificationProducerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NotificationProducerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(NotificationProducerServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

type caseRequest struct {
	CaseID    string `json:"case_id"`
	CaseTitle string `json:"case_title"`
	PosterID  string `json:"poster_id"`
}

func (r caseRequest) toCase() notifications.Case {
	return notifications.Case{ID: r.CaseID, Title: r.CaseTitle, PosterID: r.PosterID}
}

type createRequest struct {
	RecipientID   string          `json:"recipient_id"`
	Type          string          `json:"type"`
	Message       string          `json:"message"`
	RelatedUserID string          `json:"related_user_id"`
	RelatedPostID string          `json:"related_post_id"`
	RelatedCaseID string          `json:"related_case_id"`
	Payload       json.RawMessage `json:"payload"`
}

func (s *Server) CreateNotification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	t := models.NotificationType(req.Type)
	if !t.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown notification type %q", req.Type)
	}
	payload, err := models.DecodePayload(t, req.Payload)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	n, err := s.producer.Create(ctx, notifications.CreateInput{
		RecipientID:   req.RecipientID,
		Type:          t,
		Message:       req.Message,
		RelatedUserID: req.RelatedUserID,
		RelatedPostID: req.RelatedPostID,
		RelatedCaseID: req.RelatedCaseID,
		Payload:       payload,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"notification": n})
}

func (s *Server) NotifyNewCase(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req caseRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	created, err := s.producer.NotifyNewCase(ctx, req.toCase())
	return bulkResponse(created, err)
}

func (s *Server) NotifyCaseApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		caseRequest
		LawyerID      string `json:"lawyer_id"`
		LawyerName    string `json:"lawyer_name"`
		ApplicationID string `json:"application_id"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	n, err := s.producer.NotifyCaseApplication(ctx, req.toCase(),
		notifications.Actor{ID: req.LawyerID, Name: req.LawyerName}, req.ApplicationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return singleResponse(n)
}

func (s *Server) NotifyApplicationDecision(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		caseRequest
		LawyerID      string `json:"lawyer_id"`
		ApplicationID string `json:"application_id"`
		Accepted      bool   `json:"accepted"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	n, err := s.producer.NotifyApplicationDecision(ctx, req.toCase(), req.LawyerID, req.ApplicationID, req.Accepted)
	if err != nil {
		return nil, toStatus(err)
	}
	return singleResponse(n)
}

func (s *Server) NotifyCaseStatusUpdate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		caseRequest
		Status       string   `json:"status"`
		RecipientIDs []string `json:"recipient_ids"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	created, err := s.producer.NotifyCaseStatusUpdate(ctx, req.toCase(), req.Status, req.RecipientIDs)
	return bulkResponse(created, err)
}

// decode maps a Struct onto a request type through its JSON form.
func decode(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// singleResponse reports skipped=true when the producer had nobody to
// notify, e.g. an actor acting on their own case.
func singleResponse(n *models.Notification) (*structpb.Struct, error) {
	if n == nil {
		return encode(map[string]any{"skipped": true})
	}
	return encode(map[string]any{"notification": n, "skipped": false})
}

// bulkResponse returns what was created even when some recipients failed.
// The failed recipient ids and a caller-safe reason travel in "failed" and
// "error"; causes are only logged. Only an outright failure with nothing
// created becomes a gRPC error.
func bulkResponse(created []models.Notification, err error) (*structpb.Struct, error) {
	if err != nil && len(created) == 0 {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code != apperrors.CodeInternal {
			return nil, toStatus(err)
		}
		logger.Warn().Err(err).Msg("bulk notification failed for every recipient")
		return nil, status.Error(codes.Internal, "failed to create notifications")
	}

	resp := map[string]any{
		"notifications": created,
		"created":       len(created),
	}
	if err != nil {
		failed := notifications.FailedRecipients(err)
		logger.Warn().Err(err).Int("created", len(created)).Strs("failed", failed).Msg("bulk notification partially failed")
		resp["failed"] = failed
		resp["error"] = apperrors.PublicMessage(err)
	}
	return encode(resp)
}

func toStatus(err error) error {
	code := apperrors.GRPCCode(err)
	if code == codes.Internal {
		logger.Error().Err(err).Msg("producer call failed")
	}
	return status.Error(code, apperrors.PublicMessage(err))
}
