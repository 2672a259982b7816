package main

import (
	"github.com/ColonelBlimp/dtmfcodec/cmd"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
