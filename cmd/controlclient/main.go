package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "recorder-transcriber-service/internal/api/grpc"
	"recorder-transcriber-service/internal/models"
)

// Runs one manual recording round trip against the control service:
// start, wait, stop, transcribe, enhance.
func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	duration := flag.Duration("duration", 5*time.Second, "How long to record")
	skipEnhance := flag.Bool("no-enhance", false, "Skip the enhancement step")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	log.Printf("Connected to %s", *serverAddr)

	ctx, cancel := context.WithTimeout(context.Background(), *duration+3*time.Minute)
	defer cancel()

	var started models.StartRecordingResponse
	if err := client.StartRecording(ctx, &started); err != nil {
		log.Fatalf("StartRecording failed: %v", err)
	}
	log.Printf("Recording since %s (max %.0fs)", started.StartedAt.Format(time.RFC3339), started.MaxDurationSeconds)

	time.Sleep(*duration)

	var rec models.RecordingResponse
	if err := client.StopRecording(ctx, &rec); err != nil {
		log.Fatalf("StopRecording failed: %v", err)
	}
	log.Printf("Saved %s", rec.Path)

	var transcript models.TranscriptResponse
	if err := client.Transcribe(ctx, models.TranscribeRequest{RecordingID: rec.RecordingID}, &transcript); err != nil {
		log.Fatalf("Transcribe failed: %v", err)
	}
	log.Printf("Transcript: %s", transcript.Text)

	if *skipEnhance {
		return
	}
	var note models.EnhancementResponse
	if err := client.Enhance(ctx, models.EnhancementRequest{RecordingID: rec.RecordingID}, &note); err != nil {
		log.Fatalf("Enhance failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(note)
}
