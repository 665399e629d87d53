package studentscorner

import (
	"strings"
	"studentscorner-backend/pkg/htmlutil"
	"studentscorner-backend/pkg/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	semesterMarker     = "Semester -"
	totalCreditsMarker = "Total Credits"
	sgpaMarker         = "Semester Grade Point Average"
	securedMarker      = "Total Secured Credits"
	cgpaMarker         = "Cumulative Grade Point Average"

	// serial no., code, title, grade point, grade, status, credits
	subjectColumns = 7
	rollNumberLen  = 10
)

// Parse extracts a transcript out of the html of a credit register page.
//
// The markup of the page differs between cohorts and account states, so Parse
// never fails, anything it cannot find is left at its zero value.
func Parse(page string) Transcript {
	transcript := Transcript{Semesters: []Semester{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return transcript
	}

	name := parseName(doc)
	transcript.Student = Student{
		Name:       &name,
		RollNumber: parseRollNumber(doc),
	}
	transcript.Semesters = parseSemesters(collectRows(doc))
	transcript.Overall = parseOverall(doc)

	return transcript
}

// the student's name is the second <font color="blue"> on the page, the
// first one is the page banner.
func parseName(doc *goquery.Document) string {
	fonts := doc.Find(`font[color="blue"]`).Nodes
	if len(fonts) < 2 {
		return ""
	}
	return htmlutil.CollapseWhitespace(htmlutil.GetText(fonts[1]))
}

func parseRollNumber(doc *goquery.Document) *string {
	for _, td := range doc.Find("td").Nodes {
		text := htmlutil.GetTrimmedText(td)
		if len(text) == rollNumberLen && textutil.IsDigits(text) {
			return &text
		}
	}
	return nil
}

func parseOverall(doc *goquery.Document) Overall {
	headers := doc.Find("th").Nodes
	find := func(keyword string) *float64 {
		for _, th := range headers {
			text := htmlutil.GetText(th)
			if strings.Contains(text, keyword) {
				return textutil.ExtractNumber(text)
			}
		}
		return nil
	}

	return Overall{
		TotalCredits:   find(totalCreditsMarker),
		SecuredCredits: find(securedMarker),
		CGPA:           find(cgpaMarker),
	}
}

// row is the flattened form of a <tr> the semester scan works on.
type row struct {
	// parent is the node the <tr> hangs off of (usually a <tbody>), a
	// semester only ever spans rows with the same parent.
	parent *html.Node
	// headers holds the trimmed text of the <th> cells whose closest <tr> is
	// this row.
	headers []string
	// cells holds the trimmed text of every <td> inside the row, nested ones included.
	cells []string
	text  string
}

func collectRows(doc *goquery.Document) []row {
	trs := doc.Find("tr").Nodes
	index := make(map[*html.Node]int, len(trs))
	rows := make([]row, len(trs))
	for i, tr := range trs {
		index[tr] = i

		var cells []string
		for _, td := range goquery.NewDocumentFromNode(tr).Find("td").Nodes {
			cells = append(cells, htmlutil.GetTrimmedText(td))
		}
		rows[i] = row{
			parent: tr.Parent,
			cells:  cells,
			text:   htmlutil.GetText(tr),
		}
	}

	for _, th := range doc.Find("th").Nodes {
		tr := closestRow(th)
		if tr == nil {
			continue
		}
		i := index[tr]
		rows[i].headers = append(rows[i].headers, htmlutil.GetTrimmedText(th))
	}

	return rows
}

func closestRow(node *html.Node) *html.Node {
	for n := node.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "tr" {
			return n
		}
	}
	return nil
}

func parseSubject(cells []string) (Subject, bool) {
	if len(cells) < subjectColumns || !textutil.IsDigits(cells[0]) {
		return Subject{}, false
	}
	return Subject{
		Code:       cells[1],
		Title:      cells[2],
		GradePoint: textutil.SafeFloat(cells[3], nil),
		Grade:      cells[4],
		Status:     cells[5],
		Credits:    textutil.SafeFloatOr(cells[6], 0),
	}, true
}

type openSemester struct {
	index  int
	parent *html.Node
}

// parseSemesters scans rows top to bottom. A <th> containing "Semester -"
// opens a semester, which then takes every following row with the same
// parent until a row mentions "Semester -" or "Total Credits".
func parseSemesters(rows []row) []Semester {
	semesters := []Semester{}
	var open []openSemester

	for _, r := range rows {
		remaining := open[:0]
		for _, o := range open {
			if o.parent != r.parent {
				remaining = append(remaining, o)
				continue
			}
			if textutil.ContainsAny(r.text, semesterMarker, totalCreditsMarker) {
				continue
			}

			sem := &semesters[o.index]
			subject, ok := parseSubject(r.cells)
			if ok {
				sem.Subjects = append(sem.Subjects, subject)
			}
			if strings.Contains(r.text, sgpaMarker) {
				sgpa := textutil.ExtractNumber(r.text)
				if sgpa != nil {
					sem.SGPA = sgpa
				}
			}
			remaining = append(remaining, o)
		}
		open = remaining

		for _, header := range r.headers {
			if !strings.Contains(header, semesterMarker) {
				continue
			}
			semesters = append(semesters, Semester{
				Semester: header,
				Subjects: []Subject{},
			})
			open = append(open, openSemester{
				index:  len(semesters) - 1,
				parent: r.parent,
			})
		}
	}

	return semesters
}
