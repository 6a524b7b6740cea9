// Package main contains a command to calibrate a camera from chessboard
// frames, either live from a webcam or replayed from a directory of stills.
package main

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/boardcal/calib"
	"go.viam.com/boardcal/chessboard"
	"go.viam.com/boardcal/detect"
	"go.viam.com/boardcal/imagesource"
	"go.viam.com/boardcal/pipeline"
	"go.viam.com/boardcal/render"
)

var logger = golog.NewDevelopmentLogger("calibrate")

const maxProbedDevices = 10

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Device      int     `flag:"device,default=-1,usage=camera device ID (-1 replays still frames)"`
	Frames      string  `flag:"frames,default=res/frames,usage=directory of still frames"`
	Rows        int     `flag:"rows,default=7,usage=inner corners per board column"`
	Cols        int     `flag:"cols,default=7,usage=inner corners per board row"`
	Square      float64 `flag:"square,default=1.0,usage=physical square size"`
	Required    int     `flag:"required,default=12,usage=accepted frames needed in camera mode"`
	Out         string  `flag:"out,default=,usage=output JSON path (default calibration_<timestamp>.json)"`
	ListDevices bool    `flag:"list-devices,usage=list available camera devices and exit"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	if argsParsed.ListDevices {
		devices := imagesource.EnumerateWebcams(maxProbedDevices)
		if len(devices) == 0 {
			logger.Info("no camera capture devices found")
			return nil
		}
		for _, id := range devices {
			logger.Infof("device %d available", id)
		}
		return nil
	}

	return runSession(ctx, argsParsed, logger)
}

func runSession(ctx context.Context, args Arguments, logger golog.Logger) (err error) {
	useCamera := args.Device >= 0

	var src pipeline.FrameSource
	if useCamera {
		src, err = imagesource.NewWebcam(args.Device)
	} else {
		src, err = imagesource.NewImageSequence(args.Frames)
	}
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, src.Close())
	}()

	finder, err := detect.NewChessboardFinder(args.Rows, args.Cols)
	if err != nil {
		return err
	}
	resolver := chessboard.NewResolver(calib.PlanarPoseSolver{}, chessboard.DefaultResolverConfig(), logger)
	p := pipeline.New(
		pipeline.Config{
			Rows:           args.Rows,
			Cols:           args.Cols,
			SquareSize:     args.Square,
			RequiredFrames: args.Required,
		},
		finder,
		func(gray *image.Gray) bool { return detect.IsBlurred(gray, useCamera) },
		resolver,
		logger,
	)

	result, err := p.Run(ctx, src)
	if err != nil {
		if errors.Is(err, calib.ErrInsufficientData) {
			return errors.Wrap(err, "session ended without a calibration")
		}
		return err
	}
	logger.Infof("calibration complete: %s", result)

	outPath := args.Out
	if outPath == "" {
		outPath = timestampedFilename("calibration", "json")
	}
	if err := result.WriteToFile(outPath); err != nil {
		return err
	}
	logger.Infof("calibration saved as %s", outPath)

	return saveFinalFrame(p, result, args, logger)
}

// saveFinalFrame re-solves the last accepted frame's pose under the final
// calibrated intrinsics and writes an annotated copy to disk.
func saveFinalFrame(p *pipeline.Pipeline, result *calib.Result, args Arguments, logger golog.Logger) error {
	frame := p.LastAccepted()
	candidate := p.LastCandidate()
	if frame == nil || candidate == nil {
		return nil
	}

	objectPoints := chessboard.ObjectPoints(args.Rows, args.Cols, args.Square)
	pose, err := calib.PlanarPoseSolver{}.Solve(objectPoints, candidate.Grid.Points(), &result.Intrinsics)
	if err != nil {
		logger.Debugf("could not re-solve final pose: %v", err)
		return nil
	}

	annotated := render.DrawGrid(frame, candidate.Grid)
	annotated = render.DrawPose(annotated, pose, &result.Intrinsics, result.Distortion, args.Rows, args.Cols, args.Square)
	outPath := timestampedFilename("final_frame", "png")
	if err := render.SavePNG(outPath, annotated); err != nil {
		return err
	}
	logger.Infof("final frame saved as %s", outPath)
	return nil
}

func timestampedFilename(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405"), ext)
}
