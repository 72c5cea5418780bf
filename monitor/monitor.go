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

// Package monitor implements the paginated terminal dashboard for a Gilbert
// mesh, adapted from beekeeper's lib/monitor.go from a broadcast-polled
// Workers table into a direct mesh.NodeManager.Snapshot() view plus a local
// sysinfo.Collect() self box.
package monitor

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/mesh"
	"github.com/ThePerkinrex/gilbert/sysinfo"
)

const monitorMaxPeersPerPage = 5

// Monitor is a tview application paginating a mesh's peer registry.
type Monitor struct {
	App         *tview.Application
	Pages       *tview.Pages
	CurrentPage int

	selfName string
}

// NewMonitor creates an unstarted Monitor for the named local node.
func NewMonitor(selfName string) *Monitor {
	return &Monitor{
		App:         tview.NewApplication(),
		Pages:       tview.NewPages(),
		CurrentPage: 1,
		selfName:    selfName,
	}
}

// Run polls manager's snapshot every interval and redraws until the user
// quits (Ctrl-C or Esc).
func (m *Monitor) Run(manager *mesh.NodeManager, interval time.Duration) error {
	m.App.SetInputCapture(func(e *tcell.EventKey) *tcell.EventKey {
		switch e.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			m.Stop()
		case tcell.KeyRight:
			m.NextPage()
		case tcell.KeyLeft:
			m.PreviousPage()
		}
		return e
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			m.App.QueueUpdateDraw(func() {
				m.Render(manager.Snapshot(), sysinfo.Collect())
			})
			<-ticker.C
		}
	}()

	if err := m.App.Run(); err != nil {
		logrus.WithError(err).Error("monitor interface exited")
		return err
	}
	return nil
}

type peerRow struct {
	name   string
	status mesh.Status
}

// Render redraws every page of peer detail boxes plus a fixed self box
// reporting local load.
func (m *Monitor) Render(snapshot map[string]mesh.Status, self sysinfo.Snapshot) {
	rows := make([]peerRow, 0, len(snapshot))
	for name, status := range snapshot {
		rows = append(rows, peerRow{name: name, status: status})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	var detailBoxes []*tview.Flex
	for _, r := range rows {
		detailBoxes = append(detailBoxes, newPeerDetailBox(r))
	}

	chunks := chunkDetails(detailBoxes, monitorMaxPeersPerPage)
	for pageNum, chunk := range chunks {
		pageNum++

		pageName := fmt.Sprintf("%d", pageNum)
		content := pageContentFromChunk(chunk, pageNum, len(chunks), m.selfName, self)

		m.Pages.AddPage(pageName, content, true, false)
	}

	m.Pages.SwitchToPage(fmt.Sprintf("%d", m.CurrentPage))
	m.App.SetRoot(m.Pages, true)
}

// NextPage moves to the n+1 page.
func (m *Monitor) NextPage() {
	next := m.CurrentPage + 1
	if m.Pages.GetPageCount() < next {
		return
	}

	m.CurrentPage = next
	m.Pages.SwitchToPage(fmt.Sprintf("%d", next))
}

// PreviousPage moves to the n-1 page.
func (m *Monitor) PreviousPage() {
	previous := m.CurrentPage - 1
	if previous < 1 {
		return
	}

	m.CurrentPage = previous
	m.Pages.SwitchToPage(fmt.Sprintf("%d", previous))
}

// Stop stops the App and exits the process.
func (m *Monitor) Stop() {
	m.App.Stop()
	os.Exit(0)
}

// pageContentFromChunk builds one page: a header box for the local node,
// the peer detail rows, and a footer with page navigation hints.
func pageContentFromChunk(chunk []*tview.Flex, pageNum, totalPages int, selfName string, self sysinfo.Snapshot) *tview.Flex {
	content := tview.NewFlex().SetDirection(tview.FlexRow)
	content.SetBorder(true)
	content.SetTitle(" Gilbert Monitor ")
	content.SetTitleAlign(tview.AlignCenter)

	if pageNum == 1 {
		content.AddItem(newSelfBox(selfName, self), 5, 1, false)
	}

	for _, row := range chunk {
		content.AddItem(row, 5, 5, false)
	}

	emptySlots := (monitorMaxPeersPerPage - len(chunk)) + 1
	for x := 0; x < emptySlots; x++ {
		content.AddItem(nil, 0, 5, false)
	}

	footerText := fmt.Sprintf("Page %d/%d", pageNum, totalPages)
	if pageNum+1 <= totalPages {
		footerText += " >"
	} else {
		footerText += "  "
	}
	if pageNum-1 >= 1 {
		footerText = "< " + footerText
	} else {
		footerText = "  " + footerText
	}

	content.AddItem(newPrimitive(footerText), 1, 1, false)

	return content
}

// newSelfBox renders the local node's own load, since it never appears in
// its own NodeManager registry.
func newSelfBox(name string, self sysinfo.Snapshot) *tview.Flex {
	osBox := tview.NewFlex()
	osBox.SetTitle("OS").SetBorder(true).SetTitleAlign(tview.AlignCenter)
	osBox.AddItem(newPrimitive(self.OS), 0, 1, false)

	cpuTemp := tview.NewFlex()
	cpuTemp.SetTitle("CPU Temp.").SetBorder(true).SetTitleAlign(tview.AlignCenter)
	cpuTemp.AddItem(newPrimitive(fmt.Sprintf("%d°C", int(self.CPUTemp))), 0, 1, false)

	usage := tview.NewFlex()
	usage.SetTitle("Usage").SetBorder(true).SetTitleAlign(tview.AlignCenter)
	usage.AddItem(newPrimitive(fmt.Sprintf("%d%%", int(self.Usage))), 0, 1, false)

	flex := tview.NewFlex()
	flex.Box.SetTitle(name + " (self)").SetBorder(true).SetTitleAlign(tview.AlignLeft)

	flex.AddItem(osBox, 0, 1, false)
	flex.AddItem(cpuTemp, 0, 1, false)
	flex.AddItem(usage, 0, 1, false)

	return flex
}

// newPeerDetailBox renders one peer's name and connection status.
func newPeerDetailBox(r peerRow) *tview.Flex {
	status := tview.NewFlex()
	status.SetTitle("Status").SetBorder(true).SetTitleAlign(tview.AlignCenter)
	status.AddItem(newPrimitive(r.status.String()), 0, 1, false)

	flex := tview.NewFlex()
	flex.Box.SetTitle(r.name).SetBorder(true).SetTitleAlign(tview.AlignLeft)
	flex.AddItem(status, 0, 1, false)

	return flex
}

// chunkDetails splits details into pages of at most perPage entries.
func chunkDetails(details []*tview.Flex, perPage int) (chunks [][]*tview.Flex) {
	for perPage < len(details) {
		details, chunks = details[perPage:], append(chunks, details[0:perPage:perPage])
	}
	return append(chunks, details)
}

// newPrimitive creates a centered text primitive.
func newPrimitive(text string) tview.Primitive {
	return tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(text)
}
