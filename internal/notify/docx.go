package notify

import (
	"fmt"
	"time"

	"github.com/gingfrederik/docx"

	"github.com/TobiSchelling/AIDiscovery/internal/recommend"
)

func writeDocx(path string, recs []recommend.Recommendation, generated time.Time) error {
	f := docx.NewFile()

	run := f.AddParagraph().AddText(title)
	run.Size(20)
	if len(recs) == 0 {
		f.AddParagraph().AddText(nothingNew)
		return f.Save(path)
	}
	addMeta(f, "Generated: "+generated.Format(generatedTime), "808080")
	f.AddParagraph()

	for i, r := range recs {
		src := r.Source
		run = f.AddParagraph().AddText(fmt.Sprintf("%d. %s", i+1, src.Name))
		run.Size(16)

		if u := deref(src.URL); u != "" {
			addMeta(f, u, "0000FF")
		}
		if h := deref(src.Handle); h != "" {
			addMeta(f, "@"+h+" "+profileURL(h), "0000FF")
		}
		addMeta(f, fmt.Sprintf("Type: %s | Relevance: %s | Citations: %d",
			src.Kind, percent(src.RelevanceScore), src.CitationCount), "808080")
		f.AddParagraph().AddText(r.Reason)
		f.AddParagraph().AddText("--------------------------------------------------")
	}
	return f.Save(path)
}

func addMeta(f *docx.File, text, hex string) {
	run := f.AddParagraph().AddText(text)
	run.Size(10)
	run.Color(hex)
}
