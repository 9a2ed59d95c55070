package main

import (
	"insights-backend/cmd/insights/cmd"
	"insights-backend/lib/serviceutil"
)

func main() {
	cmd.Execute(serviceutil.SignalContext())
}
