package calib

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Result holds the output of one calibration run. It is immutable after
// creation.
type Result struct {
	Intrinsics      Intrinsics    `json:"intrinsic_parameters"`
	Distortion      *BrownConrady `json:"distortion"`
	MeanReprojError float64       `json:"mean_reprojection_error_px"`
}

// WriteToFile serializes the result as JSON. The file is written whole or
// not at all.
func (res *Result) WriteToFile(path string) (err error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not marshal calibration result")
	}
	tmp := path + ".tmp"
	//nolint:gosec
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "could not create calibration file")
	}
	if _, err = f.Write(data); err != nil {
		utils.UncheckedErrorFunc(f.Close)
		return errors.Wrap(err, "could not write calibration file")
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// NewResultFromJSONFile reads a previously saved calibration result.
func NewResultFromJSONFile(path string) (*Result, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	res := &Result{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return res, nil
}

func (res *Result) String() string {
	return fmt.Sprintf("intrinsics: %s, distortion: %v, mean reprojection error: %.4f px",
		res.Intrinsics.String(), res.Distortion.Parameters(), res.MeanReprojError)
}
