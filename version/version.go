package version

// Version wird beim Release per -ldflags "-X github.com/trtforge/onnx2trt/version.Version=..." gesetzt
var Version string = "0.0.0"
