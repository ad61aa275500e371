// Package report renders a finished batch as a tag-formatted text report,
// ready to paste into a forum post.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"

	"gamebatch/internal/models"
	"gamebatch/pkg/utils"
)

const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
	StatusNotRun    = "not reached"
)

type stageLine struct {
	Name   string
	Status string
	Detail string
}

type depotLine struct {
	ID       string
	Manifest string
	Size     string
}

type entry struct {
	Name       string
	Path       string
	ExternalID string
	Size       string
	Version    *models.VersionInfo
	Updated    string
	Depots     []depotLine
	Stages     []stageLine
	Errors     []string
	Link       string
}

type document struct {
	BatchID   string
	Generated string
	Duration  string
	Total     int
	Uploaded  int
	Failed    int
	Entries   []entry
}

var reportTemplate = template.Must(template.New("report").Parse(`[b]Batch {{.BatchID}}[/b]
Generated: {{.Generated}} | Duration: {{.Duration}} | Items: {{.Total}} | Uploaded: {{.Uploaded}} | Failed: {{.Failed}}
{{range .Entries}}
[hr]
[b]{{.Name}}[/b]{{if .ExternalID}} [i](app {{.ExternalID}})[/i]{{end}}
Path: {{.Path}}{{if .Size}} ({{.Size}}){{end}}
{{- with .Version}}
Build: {{.BuildID}}{{if .Branch}} | Branch: {{.Branch}}{{end}}{{if .Platform}} | Platform: {{.Platform}}{{end}}
{{- end}}
{{- if .Updated}}
Updated: {{.Updated}}
{{- end}}
{{- if .Depots}}
[list]
{{- range .Depots}}
[*]Depot {{.ID}}: manifest {{.Manifest}}{{if .Size}} ({{.Size}}){{end}}
{{- end}}
[/list]
{{- end}}
[list]
{{- range .Stages}}
[*]{{.Name}}: {{.Status}}{{if .Detail}} - {{.Detail}}{{end}}
{{- end}}
[/list]
{{- if .Errors}}
[color=red]Errors:[/color]
[list]
{{- range .Errors}}
[*]{{.}}
{{- end}}
[/list]
{{- end}}
{{- if .Link}}
[url={{.Link}}]Download {{.Name}}[/url]
{{- end}}
{{end}}`))

// Render writes the report for items, in submission order, using the
// outcomes recorded in res.
func Render(w io.Writer, items []models.WorkItem, res *models.BatchResult) error {
	doc := document{
		BatchID:   res.BatchID,
		Generated: utils.FormatTime(time.Now()),
		Duration:  res.Duration.Round(time.Second).String(),
		Total:     res.TotalItems,
		Uploaded:  res.Uploaded,
		Failed:    len(res.Failures),
	}

	links := make(map[string]string, len(res.UploadResults))
	for _, u := range res.UploadResults {
		links[u.GameName] = u.FinalURL
	}

	for _, item := range items {
		out, ok := res.Outcomes[item.Name]
		if !ok {
			out = models.ItemOutcome{Name: item.Name, State: "pending"}
		}
		doc.Entries = append(doc.Entries, buildEntry(item, out, links[item.Name]))
	}

	if err := reportTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// Links renders only the download links, one tag per uploaded item.
func Links(res *models.BatchResult) string {
	var b strings.Builder
	for _, u := range res.UploadResults {
		fmt.Fprintf(&b, "[url=%s]%s[/url]\n", u.FinalURL, u.GameName)
	}
	return b.String()
}

func buildEntry(item models.WorkItem, out models.ItemOutcome, link string) entry {
	e := entry{
		Name:       item.Name,
		Path:       item.SourcePath,
		ExternalID: item.ExternalID,
		Version:    item.Version,
		Errors:     out.Errors,
		Link:       link,
	}
	if item.SizeBytes > 0 {
		e.Size = utils.FormatBytes(item.SizeBytes)
	}
	if v := item.Version; v != nil {
		if v.LastUpdatedUnix > 0 {
			e.Updated = utils.FormatTime(time.Unix(v.LastUpdatedUnix, 0).UTC())
		}
		ids := make([]string, 0, len(v.Depots))
		for id := range v.Depots {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			d := depotLine{ID: id, Manifest: v.Depots[id].ManifestID}
			if v.Depots[id].SizeBytes > 0 {
				d.Size = utils.FormatBytes(v.Depots[id].SizeBytes)
			}
			e.Depots = append(e.Depots, d)
		}
	}

	e.Stages = []stageLine{
		crackLine(item, out),
		compressLine(item, out),
		uploadLine(item, out),
	}
	return e
}

func crackLine(item models.WorkItem, out models.ItemOutcome) stageLine {
	l := stageLine{Name: "Crack"}
	switch {
	case !item.DoCrack:
		l.Status = StatusSkipped
	case !out.CrackAttempted:
		l.Status = notRun(out)
	case out.Success:
		l.Status = StatusOK
		l.Detail = fmt.Sprintf("%d replaced, %d unpacked", len(out.FilesReplaced), len(out.ExesUnpacked))
	case out.Cancelled:
		l.Status = StatusCancelled
	default:
		l.Status = StatusFailed
	}
	return l
}

func compressLine(item models.WorkItem, out models.ItemOutcome) stageLine {
	l := stageLine{Name: "Compress"}
	c := out.Compress
	switch {
	case !item.DoCompress:
		l.Status = StatusSkipped
	case !c.Attempted:
		l.Status = notRun(out)
	case c.Success:
		l.Status = StatusOK
		l.Detail = utils.FormatBytes(c.OutputSizeBytes)
	case out.Cancelled:
		l.Status = StatusCancelled
	default:
		l.Status = StatusFailed
		l.Detail = c.Error
	}
	return l
}

func uploadLine(item models.WorkItem, out models.ItemOutcome) stageLine {
	l := stageLine{Name: "Upload"}
	u := out.Upload
	switch {
	case !item.DoUpload:
		l.Status = StatusSkipped
	case u.Success:
		l.Status = StatusOK
		if u.RetryCount > 0 {
			l.Detail = fmt.Sprintf("after %d retries", u.RetryCount)
		}
	case out.Cancelled:
		l.Status = StatusCancelled
	case !u.Attempted:
		l.Status = notRun(out)
	default:
		l.Status = StatusFailed
		l.Detail = u.Error
	}
	return l
}

func notRun(out models.ItemOutcome) string {
	if out.Cancelled {
		return StatusCancelled
	}
	return StatusNotRun
}
