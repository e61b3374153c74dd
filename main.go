package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trtforge/onnx2trt/cmd"
)

func main() {
	if err := cmd.NewCLI().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, cmd.ErrorMessage(err))
		os.Exit(1)
	}
}
