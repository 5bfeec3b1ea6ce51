package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recorder-transcriber-service/internal/app"
	"recorder-transcriber-service/internal/audio"
	"recorder-transcriber-service/internal/models"
	"recorder-transcriber-service/internal/service/stt"
	"recorder-transcriber-service/internal/storage"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe a WAV file with the configured provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			return errors.New("--file is required")
		}
		format, pcm, err := audio.ReadWAVFile(path)
		if err != nil {
			return err
		}

		adapter, release, err := app.NewTranscriber(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer release()

		t, err := adapter.Transcribe(cmd.Context(), stt.Request{Path: path, PCM: pcm, Format: format})
		if err != nil {
			return err
		}
		return printJSON(models.TranscriptResponse{
			RecordingID: path,
			Text:        t.Text,
			GeneratedAt: time.Now().UTC(),
		})
	},
}

var enhanceCmd = &cobra.Command{
	Use:   "enhance <text>",
	Short: "Turn text into a structured note with the configured provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enhancer, err := app.NewEnhancer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		note, err := enhancer.Enhance(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printJSON(models.EnhancementResponse{
			Title:     note.Title,
			Body:      note.Body,
			Tags:      note.Tags,
			CreatedAt: time.Now().UTC(),
		})
	},
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List indexed recordings, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		store, err := storage.Open(cfg.Storage.Dir, cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-6s\t%6.1fs\t%s\n",
				rec.CapturedAt.Local().Format(time.DateTime), rec.Origin, rec.Duration.Seconds(), rec.Path)
		}
		return nil
	},
}

func init() {
	transcribeCmd.Flags().StringP("file", "f", "", "WAV file to transcribe")
	recordingsCmd.Flags().IntP("limit", "n", 50, "Maximum number of recordings to list")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
