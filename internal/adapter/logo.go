package adapter

import (
	_ "embed"
	"encoding/base64"
)

//go:embed logo.png
var logoPNG []byte

var iconDataURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(logoPNG)
