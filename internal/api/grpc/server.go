package grpcapi

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"recorder-transcriber-service/internal/app"
	"recorder-transcriber-service/internal/events"
	"recorder-transcriber-service/internal/models"
	"recorder-transcriber-service/internal/observability/logging"
	"recorder-transcriber-service/internal/schema"
	"recorder-transcriber-service/internal/service/enhance"
	"recorder-transcriber-service/internal/service/session"
	"recorder-transcriber-service/internal/service/stt"
	"recorder-transcriber-service/internal/service/transcription"
	"recorder-transcriber-service/internal/storage"
)

type Server struct {
	app *app.Application
	log zerolog.Logger
}

func Register(g *grpc.Server, application *app.Application) {
	s := &Server{
		app: application,
		log: logging.WithComponent("grpc"),
	}
	g.RegisterService(&ServiceDesc, s)
}

func (s *Server) StartRecording(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.app.Machine.BeginManualRecording()
	if err != nil {
		return nil, s.toStatus(err)
	}
	return reply(models.StartRecordingResponse{
		Status:             "recording",
		StartedAt:          sess.StartedAt,
		MaxDurationSeconds: sess.MaxDuration.Seconds(),
	})
}

func (s *Server) StopRecording(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rec, err := s.app.Machine.EndManualRecording(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return reply(models.RecordingResponse{
		RecordingID: rec.ID,
		Path:        rec.Path,
		CapturedAt:  rec.CapturedAt,
	})
}

func (s *Server) Transcribe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.TranscribeRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	t, err := s.app.Transcription.Transcribe(ctx, req.RecordingID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return reply(models.TranscriptResponse{
		RecordingID: t.RecordingID,
		Text:        t.Text,
		GeneratedAt: t.GeneratedAt,
	})
}

func (s *Server) Enhance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.EnhancementRequest
	if err := s.decode(in, &req); err != nil {
		return nil, err
	}
	note, err := s.app.Transcription.Enhance(ctx, req.Text, req.RecordingID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return reply(models.EnhancementResponse{
		Title:       note.Title,
		Body:        note.Body,
		Tags:        note.Tags,
		CreatedAt:   note.CreatedAt,
		RecordingID: note.RecordingID,
	})
}

func (s *Server) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.app.Machine.Status()
	resp := models.StatusResponse{
		State:           st.State.String(),
		Generation:      st.Generation,
		LastRecordingID: st.LastRecordingID,
		LastError:       st.LastError,
		Subscribed:      s.app.Publisher.HasSubscriber(),
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = &st.StartedAt
	}
	if !st.LastWakeAt.IsZero() {
		resp.LastWakeAt = &st.LastWakeAt
	}
	return reply(resp)
}

// Listen attaches the caller as the live subscriber. Inbound messages are
// {"action": "start"|"stop"} commands; outbound messages are the same
// event documents the WebSocket channel carries.
func (s *Server) Listen(stream ListenStream) error {
	id := uuid.NewString()
	log := logging.WithSubscriber("grpc", id)

	sub, err := s.app.Publisher.Attach(id, "grpc")
	if err != nil {
		log.Warn().Err(err).Msg("Rejecting second streaming client")
		if msg, convErr := ToStruct(errorEvent(err.Error())); convErr == nil {
			_ = stream.Send(msg)
		}
		return status.Error(codes.AlreadyExists, err.Error())
	}
	defer sub.Close()

	if err := send(stream, models.WsConnectedEvent{Type: models.EventConnected, Message: models.ConnectedMessage}); err != nil {
		return err
	}
	log.Info().Msg("Streaming client connected")

	replies := make(chan any, 16)
	readerDone := make(chan error, 1)
	go func() {
		readerDone <- s.readCommands(stream, sub, replies, log)
	}()

	for {
		select {
		case ev := <-sub.Events():
			if err := send(stream, ev.Payload()); err != nil {
				return err
			}
		case msg := <-replies:
			if err := send(stream, msg); err != nil {
				return err
			}
		case <-sub.Done():
			log.Info().Msg("Subscriber detached")
			return status.Error(codes.ResourceExhausted, "subscriber detached")
		case err := <-readerDone:
			log.Info().Msg("Streaming client disconnected")
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *Server) readCommands(stream ListenStream, sub *events.Subscription, replies chan<- any, log zerolog.Logger) error {
	// The sender may have returned already; never block on it.
	answer := func(v any) {
		select {
		case replies <- v:
		default:
		}
	}

	for {
		in, err := stream.Recv()
		if err != nil {
			return err
		}
		var cmd models.WsCommand
		if err := FromStruct(in, &cmd); err != nil {
			answer(errorEvent("invalid command: " + err.Error()))
			continue
		}
		if err := s.app.Validator.Validate(cmd); err != nil {
			answer(errorEvent(err.Error()))
			continue
		}
		if err := s.execute(sub, cmd); err != nil {
			log.Info().Err(err).Str("action", cmd.Action).Msg("Command rejected")
			answer(errorEvent(err.Error()))
		}
	}
}

func (s *Server) execute(sub *events.Subscription, cmd models.WsCommand) error {
	switch cmd.Action {
	case models.ActionStart:
		_, err := s.app.ArmListening(sub)
		return err
	case models.ActionStop:
		return s.app.DisarmListening(context.Background(), sub)
	}
	return nil
}

func (s *Server) decode(in *structpb.Struct, v any) error {
	if err := FromStruct(in, v); err != nil {
		return status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	if err := s.app.Validator.Validate(v); err != nil {
		return s.toStatus(err)
	}
	return nil
}

func (s *Server) toStatus(err error) error {
	code := codeFor(err)
	if code == codes.Internal {
		s.log.Error().Err(err).Msg("Request failed")
	}
	return status.Error(code, err.Error())
}

// codeFor maps service errors to gRPC status codes.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, session.ErrConflict):
		return codes.FailedPrecondition
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, transcription.ErrNoTranscript):
		return codes.NotFound
	case errors.Is(err, schema.ErrInvalid), errors.Is(err, enhance.ErrEmptyText):
		return codes.InvalidArgument
	case errors.Is(err, stt.ErrTranscriptionFailed), errors.Is(err, enhance.ErrEnhancementFailed):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func reply(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func send(stream ListenStream, v any) error {
	msg, err := ToStruct(v)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.Send(msg)
}

func errorEvent(message string) models.WsErrorEvent {
	return models.WsErrorEvent{Type: models.EventError, Message: message, Timestamp: time.Now().UTC()}
}
