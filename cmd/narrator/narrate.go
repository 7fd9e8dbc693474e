package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/narrator/internal/core"
	"github.com/book-expert/narrator/internal/fsutil"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/book-expert/narrator/internal/transform"
	"github.com/spf13/cobra"
)

const (
	flagMaxChunkSize = "max-chunk-size"
	flagFresh        = "fresh"
	flagOutput       = "output"
	flagVoice        = "voice"
	flagSpeed        = "speed"
	flagFormat       = "format"
	flagBackend      = "backend"
	flagNormalize    = "normalize"
)

// jobFlags are shared by cleanup and audiobook.
type jobFlags struct {
	maxChunkSize int
	fresh        bool
	output       string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxChunkSize, flagMaxChunkSize, 0, "largest chunk in characters (default from config)")
	cmd.Flags().BoolVar(&f.fresh, flagFresh, false, "discard an existing checkpoint and start over")
	cmd.Flags().StringVarP(&f.output, flagOutput, "o", "", "output path (default derived from the input)")
}

func (f *jobFlags) job(input string) pipeline.Job {
	return pipeline.Job{InputPath: input, OutputPath: f.output, Fresh: f.fresh}
}

func newCleanupCommand(a *app) *cobra.Command {
	flags := &jobFlags{}

	cmd := &cobra.Command{
		Use:   "cleanup <input>",
		Short: "Clean OCR text into a narration-ready script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed(flagMaxChunkSize) {
				a.cfg.Cleanup.MaxChunkSize = flags.maxChunkSize
			}

			err := a.cfg.Validate()
			if err != nil {
				return err
			}

			cleaner, err := a.cfg.NewTextCleaner()
			if err != nil {
				return err
			}

			return a.runJob(cmd, flags.job(args[0]), cleaner)
		},
	}

	flags.register(cmd)

	return cmd
}

type audiobookFlags struct {
	jobFlags

	voice     string
	speed     float64
	format    string
	backend   string
	normalize bool
}

func newAudiobookCommand(a *app) *cobra.Command {
	flags := &audiobookFlags{}

	cmd := &cobra.Command{
		Use:   "audiobook <input>",
		Short: "Narrate a text file into a single audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := flags.apply(cmd, a)
			if err != nil {
				return err
			}

			if a.cfg.Speech.Backend == transform.BackendLocal {
				err = a.checkLocalService(cmd)
				if err != nil {
					return err
				}
			}

			synthesizer, err := a.cfg.NewSpeechTransformer("")
			if err != nil {
				return err
			}

			return a.runJob(cmd, flags.job(args[0]), synthesizer)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.voice, flagVoice, "", "voice (default from config; see 'narrator voices')")
	cmd.Flags().Float64Var(&flags.speed, flagSpeed, 0,
		fmt.Sprintf("speaking speed between %.1f and %.1f", transform.MinSpeed, transform.MaxSpeed))
	cmd.Flags().StringVar(&flags.format, flagFormat, "", "audio format: mp3 or wav")
	cmd.Flags().StringVar(&flags.backend, flagBackend, "", "speech backend: openai or local")
	cmd.Flags().BoolVar(&flags.normalize, flagNormalize, false, "expand abbreviations and numbers before synthesis")

	return cmd
}

// apply overlays the flags that were set on the speech configuration.
func (f *audiobookFlags) apply(cmd *cobra.Command, a *app) error {
	speech := &a.cfg.Speech
	changed := cmd.Flags().Changed

	if changed(flagBackend) && f.backend != speech.Backend {
		speech.Backend = f.backend
		speech.Voice = transform.DefaultVoice(f.backend)
	}

	if changed(flagVoice) {
		speech.Voice = f.voice
	}

	if changed(flagSpeed) {
		speech.Speed = f.speed
	}

	if changed(flagFormat) {
		speech.Format = strings.ToLower(f.format)
	}

	if changed(flagMaxChunkSize) {
		speech.MaxChunkSize = f.maxChunkSize
	}

	if changed(flagNormalize) {
		speech.NormalizeText = f.normalize
	}

	if speech.Backend == transform.BackendLocal && speech.Format != transform.FormatWAV {
		if changed(flagFormat) {
			a.printf("The local backend only produces wav; ignoring --format %s\n", f.format)
		}

		speech.Format = transform.FormatWAV
	}

	return a.cfg.Validate()
}

func (a *app) runJob(cmd *cobra.Command, job pipeline.Job, transformer core.Transformer) error {
	runner := pipeline.NewRunner(a.log)

	report, err := runner.Run(cmd.Context(), job, transformer)
	if err != nil {
		a.printFailure(err)

		return err
	}

	a.printf("Wrote %s (%s) in %s\n", report.OutputPath,
		fsutil.FormatFileSize(report.Bytes), fsutil.FormatDuration(report.Duration.Seconds()))
	a.printf("Chunks: %d total, %d resumed, %d processed\n", report.Chunks, report.Resumed, report.Processed)

	return nil
}

func (a *app) printFailure(err error) {
	var chunkErr *core.TransformationError
	if !errors.As(err, &chunkErr) {
		return
	}

	a.printf("Chunk %d failed. Finished chunks are saved; rerun the same command to resume.\n",
		chunkErr.ChunkIndex)
}

func (a *app) checkLocalService(cmd *cobra.Command) error {
	synth, err := a.cfg.NewLocalSynthesizer("", nil)
	if err != nil {
		return err
	}

	err = synth.HealthCheck(cmd.Context())
	if err != nil {
		return fmt.Errorf("local speech service at %s is not ready: %w", a.cfg.Speech.ServiceURL, err)
	}

	return nil
}
