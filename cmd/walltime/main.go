package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/sarchlab/walltime"
	"github.com/sarchlab/walltime/prediction"
	"github.com/sarchlab/walltime/resources"
	"github.com/sarchlab/walltime/timemodel"
	"github.com/sarchlab/walltime/traceplayer"
	"github.com/tebeka/atexit"
	"gitlab.com/akita/akita/v3/sim"
)

var archID = flag.String("arch", "VGG16",
	"The architecture descriptor, as a file path or a bundled name.")
var gpuID = flag.String("gpu", "V100",
	"The GPU profile, as a file path or a bundled name.")
var optimizer = flag.String("optimizer", "sgd",
	"The optimizer: sgd, adadelta, adagrad, momentum, adam, or rmsprop.")
var batchSize = flag.Int("batch-size", 1, "The batch size.")
var modelID = flag.String("model", resources.DefaultModel,
	"The regression artifact, as a file path or a bundled name.")
var scalerID = flag.String("scaler", resources.DefaultScaler,
	"The feature scaler of the artifact, as a file path or a bundled name.")
var describe = flag.Bool("describe", false, "Print the architecture before predicting.")
var csvOut = flag.String("csv", "", "Write the per-layer report to this CSV file.")
var iterations = flag.Int("iterations", 0,
	"Replay the prediction for this many training iterations on the event engine.")
var replayEstimator = flag.String("replay-estimator", "predicted",
	"The layer times of the replay: predicted, or one for 1 ms per layer.")
var configPath = flag.String("config", "",
	"A YAML file with flag values. Flags given on the command line win.")
var verbosity = flag.Int("v", 0, "The log verbosity.")

func main() {
	flag.Parse()

	err := applyConfig(*configPath)
	if err != nil {
		atexit.Fatalf("config: %v", err)
	}

	log := newLogger(*verbosity)

	loader := walltime.NewLoader(nil)
	loader.SetLogger(log)

	arch, err := loader.LoadArchitecture(*archID)
	if err != nil {
		atexit.Fatal(err)
	}

	gpu, err := loader.LoadGPU(*gpuID)
	if err != nil {
		atexit.Fatal(err)
	}

	if *describe {
		fmt.Print(arch.Describe())
		fmt.Println()
	}

	pipeline := prediction.NewPipeline(loader)
	pipeline.SetLogger(log)

	result, err := pipeline.Predict(arch, gpu, prediction.Options{
		Optimizer: *optimizer,
		BatchSize: *batchSize,
		Model:     *modelID,
		Scaler:    *scalerID,
	})
	if err != nil {
		atexit.Fatal(err)
	}

	printResult(result)

	if *csvOut != "" {
		err = writeReport(*csvOut, result)
		if err != nil {
			atexit.Fatal(err)
		}
	}

	if *iterations > 0 {
		estimator, err := newReplayEstimator(*replayEstimator)
		if err != nil {
			atexit.Fatal(err)
		}

		err = simulate(result, *iterations, estimator)
		if err != nil {
			atexit.Fatal(err)
		}
	}

	atexit.Exit(0)
}

func newLogger(verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(os.Stderr, prefix, args)
			return
		}

		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

func printResult(result prediction.Result) {
	for _, l := range result.Layers {
		fmt.Printf("%s, %.6f ms\n", l.Name, l.TimeMs)
	}

	fmt.Printf("Predicted execution time ms, %.6f\n", result.TotalTimeMs)
}

func writeReport(path string, result prediction.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	err = prediction.WriteCSV(f, result)
	if err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func newReplayEstimator(name string) (timemodel.TimeEstimator, error) {
	switch name {
	case "predicted":
		return &timemodel.RecordedTimeEstimator{}, nil
	case "one":
		return &timemodel.AlwaysOneTimeEstimator{}, nil
	default:
		return nil, fmt.Errorf("unknown replay estimator %q", name)
	}
}

func simulate(
	result prediction.Result,
	n int,
	estimator timemodel.TimeEstimator,
) error {
	if len(result.Layers) == 0 {
		fmt.Println("No convolution layers to replay")
		return nil
	}

	t, err := replay(result, n, estimator)
	if err != nil {
		return err
	}

	fmt.Printf("Simulated time for %d iterations ms, %.6f\n", n, t*1000)

	return nil
}

// replay runs the predicted layers for n iterations on a serial engine and
// returns the simulated time.
func replay(
	result prediction.Result,
	n int,
	estimator timemodel.TimeEstimator,
) (sim.VTimeInSec, error) {
	engine := sim.NewSerialEngine()
	player := traceplayer.NewPlayer(
		"Player",
		engine,
		engine,
		estimator,
	)
	player.SetTrace(traceplayer.StepsFromResult(result), n)
	player.KickStart()

	err := engine.Run()
	if err != nil {
		return 0, err
	}

	if player.Err() != nil {
		return 0, player.Err()
	}

	return engine.CurrentTime(), nil
}
