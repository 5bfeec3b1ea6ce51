package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "recorder-transcriber-service/internal/api/grpc"
	"recorder-transcriber-service/internal/models"
)

// Arms listening over the Listen stream and prints every event until
// interrupted or until -results results have arrived.
func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	maxResults := flag.Int("results", 0, "Stop after this many results (0 = run until interrupted)")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := grpcapi.NewClient(conn).Listen(ctx)
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}

	start, err := grpcapi.ToStruct(models.WsCommand{Action: models.ActionStart})
	if err != nil {
		log.Fatalf("Failed to encode command: %v", err)
	}
	if err := stream.Send(start); err != nil {
		log.Fatalf("Failed to send start: %v", err)
	}
	log.Printf("Connected to %s, listening", *serverAddr)

	results := 0
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Interrupted")
				return
			}
			log.Fatalf("Stream failed: %v", err)
		}

		ev := msg.AsMap()
		switch ev["type"] {
		case models.EventStateChange:
			log.Printf("state: %v", ev["state"])
		case models.EventResult:
			results++
			log.Printf("result %d: %v (%v)", results, ev["text"], ev["recording_id"])
		case models.EventError:
			log.Printf("error: %v", ev["message"])
		default:
			log.Printf("%v: %v", ev["type"], ev["message"])
		}

		if *maxResults > 0 && results >= *maxResults {
			stopListening(stream)
			return
		}
	}
}

func stopListening(stream grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]) {
	stop, err := grpcapi.ToStruct(models.WsCommand{Action: models.ActionStop})
	if err != nil {
		return
	}
	_ = stream.Send(stop)
	deadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := stream.Recv()
			if err != nil || msg.AsMap()["state"] == "STOPPED" {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-deadline:
	}
	_ = stream.CloseSend()
}
