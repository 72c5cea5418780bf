/*
 * Copyright © 2020 Camilo Hernández <me@camiloh.com>
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
 * THE SOFTWARE.
 */

// gilbert-echo-plugin is a minimal pluginapi-conformant subprocess: it
// accepts the runner protocol switch and answers every run_task request by
// echoing its params back as the job result, for exercising pluginhost end
// to end without needing a real task binary.
package main

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/pluginapi"
	"github.com/ThePerkinrex/gilbert/pluginrt"
)

const pluginVersion = "0.1.0"

func main() {
	rt, scanner, _, err := pluginrt.Init(os.Stdin, os.Stdout, pluginVersion)
	if err != nil {
		if rt != nil {
			rt.Shutdown()
		}
		os.Exit(1)
	}

	logrus.SetOutput(os.Stderr)
	logrus.AddHook(pluginrt.NewLogHook(rt, "gilbert-echo-plugin"))

	for scanner.Scan() {
		line := scanner.Bytes()

		var envelope pluginapi.GilbertRequest
		if json.Unmarshal(line, &envelope) == nil && envelope.Kind == pluginapi.RequestIntoRunnerProtocol {
			rt.InitRunnerResponse(nil)
			continue
		}

		var req pluginapi.RunnerRequest
		if err := json.Unmarshal(line, &req); err != nil {
			logrus.WithError(err).Warn("dropping unparseable request line")
			continue
		}
		if req.Kind != pluginapi.RunnerRequestRunTask {
			continue
		}

		runTask(rt, req)
	}

	rt.Shutdown()
}

func runTask(rt *pluginrt.Runtime, req pluginapi.RunnerRequest) {
	_ = rt.InnerResponse(pluginapi.RunnerResponse{Kind: pluginapi.RunnerResponseStartingJob})
	_ = rt.InnerResponse(pluginapi.RunnerResponse{Kind: pluginapi.RunnerResponseStartingStage, Stage: "echo"})

	logrus.WithField("job", req.Job).Info("echoing params back as the result")

	_ = rt.InnerResponse(pluginapi.RunnerResponse{Kind: pluginapi.RunnerResponseFinishedStage, Stage: "echo"})
	_ = rt.InnerResponse(pluginapi.RunnerResponse{Kind: pluginapi.RunnerResponseFinishedJob, Result: req.Params})
}
