package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"rephrase/pipeline"
)

// recorder is the part of audio.Recorder training needs.
type recorder interface {
	Start() error
	Stop() ([]byte, error)
}

// runTraining walks the user through the training phrases. Enter starts
// and stops each recording; a phrase that fails is offered again once.
func runTraining(ctx context.Context, w io.Writer, in *bufio.Reader, rec recorder, t *pipeline.Trainer) error {
	fmt.Fprintf(w, "Voice training: read %d phrases aloud.\n", len(pipeline.TrainingPhrases))
	fmt.Fprintln(w, "Press Enter to start recording, Enter again to stop.")

	var samples []pipeline.Sample
	for i, phrase := range pipeline.TrainingPhrases {
		for attempt := 0; attempt < 2; attempt++ {
			fmt.Fprintf(w, "\n[%d/%d] %q\n", i+1, len(pipeline.TrainingPhrases), phrase)
			s, err := trainPhrase(ctx, w, in, rec, t, phrase)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return err
				}
				fmt.Fprintf(w, "  %s\n", message(err))
				continue
			}
			fmt.Fprintf(w, "  heard: %q (%d%%)\n", s.Heard, s.Accuracy)
			samples = append(samples, s)
			break
		}
	}
	if len(samples) == 0 {
		return errors.New("no usable recordings")
	}

	fmt.Fprintln(w, "\nBuilding voice profile...")
	p, err := t.Build(ctx, samples)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved profile: %d samples, %d%% average accuracy, %d corrections.\n",
		p.SampleCount, p.AvgAccuracy, len(p.Corrections))
	return nil
}

func trainPhrase(ctx context.Context, w io.Writer, in *bufio.Reader, rec recorder, t *pipeline.Trainer, phrase string) (pipeline.Sample, error) {
	if _, err := in.ReadString('\n'); err != nil {
		return pipeline.Sample{}, err
	}
	if err := rec.Start(); err != nil {
		return pipeline.Sample{}, err
	}
	fmt.Fprint(w, "  ● recording... ")
	_, err := in.ReadString('\n')
	data, stopErr := rec.Stop()
	if err != nil {
		return pipeline.Sample{}, err
	}
	if stopErr != nil {
		return pipeline.Sample{}, stopErr
	}
	return t.Process(ctx, data, phrase)
}

// message is the user-facing text of a pipeline error.
func message(err error) string {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
