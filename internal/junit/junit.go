// Package junit converts a `go test -json` event stream into a JUnit XML
// report, the machine-readable artifact the test task leaves behind for
// external consumers.
package junit

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// event mirrors the JSON objects emitted by the test2json protocol.
type event struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Output  string
	Elapsed float64
}

type testCase struct {
	name    string
	status  string
	elapsed float64
	output  strings.Builder
}

type testSuite struct {
	name    string
	elapsed float64
	cases   []*testCase
	order   map[string]*testCase
	output  strings.Builder
}

// Summary aggregates the converted report.
type Summary struct {
	Tests    int
	Failures int
	Skipped  int
}

// Convert reads test2json events from r and writes a JUnit document to w.
// The returned error covers malformed input and write failures; test
// failures are reported through the summary so callers can decide the
// exit code.
func Convert(r io.Reader, w io.Writer) (Summary, error) {
	suites := map[string]*testSuite{}
	names := []string{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var evt event
		if err := json.Unmarshal(line, &evt); err != nil {
			return Summary{}, eris.Wrapf(err, "malformed test event %q", string(line))
		}

		suite, ok := suites[evt.Package]
		if !ok {
			suite = &testSuite{
				name:  evt.Package,
				order: map[string]*testCase{},
			}
			suites[evt.Package] = suite
			names = append(names, evt.Package)
		}

		if evt.Test == "" {
			switch evt.Action {
			case "output":
				suite.output.WriteString(evt.Output)
			case "pass", "fail", "skip":
				suite.elapsed = evt.Elapsed
			}
			continue
		}

		tc, ok := suite.order[evt.Test]
		if !ok {
			tc = &testCase{name: evt.Test}
			suite.order[evt.Test] = tc
			suite.cases = append(suite.cases, tc)
		}

		switch evt.Action {
		case "output":
			tc.output.WriteString(evt.Output)
		case "pass", "fail", "skip":
			tc.status = evt.Action
			tc.elapsed = evt.Elapsed
		}
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, eris.Wrap(err, "failed to read test events")
	}

	sort.Strings(names)
	doc := xmlTestSuites{}
	summary := Summary{}
	for _, name := range names {
		suite := buildSuite(suites[name])
		doc.Suites = append(doc.Suites, suite)
		summary.Tests += suite.Tests
		summary.Failures += suite.Failures
		summary.Skipped += suite.Skipped
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return summary, eris.Wrap(err, "failed to write report")
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return summary, eris.Wrap(err, "failed to write report")
	}

	// trailing newline after the closing tag
	_, err := io.WriteString(w, "\n")
	return summary, err
}

type xmlTestSuites struct {
	XMLName xml.Name       `xml:"testsuites"`
	Suites  []xmlTestSuite `xml:"testsuite"`
}

type xmlTestSuite struct {
	Name      string        `xml:"name,attr"`
	Tests     int           `xml:"tests,attr"`
	Failures  int           `xml:"failures,attr"`
	Skipped   int           `xml:"skipped,attr"`
	Time      string        `xml:"time,attr"`
	Cases     []xmlTestCase `xml:"testcase"`
	SystemOut *xmlSystemOut `xml:"system-out,omitempty"`
}

type xmlSystemOut struct {
	Content string `xml:",cdata"`
}

type xmlTestCase struct {
	Name      string      `xml:"name,attr"`
	ClassName string      `xml:"classname,attr"`
	Time      string      `xml:"time,attr"`
	Failure   *xmlFailure `xml:"failure,omitempty"`
	Skipped   *xmlSkipped `xml:"skipped,omitempty"`
}

type xmlFailure struct {
	Message string `xml:"message,attr"`
	Content string `xml:",cdata"`
}

type xmlSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

func buildSuite(suite *testSuite) xmlTestSuite {
	result := xmlTestSuite{
		Name:  suite.name,
		Tests: len(suite.cases),
		Time:  formatSeconds(suite.elapsed),
	}

	for _, tc := range suite.cases {
		xmlCase := xmlTestCase{
			Name:      tc.name,
			ClassName: suite.name,
			Time:      formatSeconds(tc.elapsed),
		}

		switch tc.status {
		case "fail":
			result.Failures++
			xmlCase.Failure = &xmlFailure{
				Message: "Failed",
				Content: tc.output.String(),
			}
		case "skip":
			result.Skipped++
			xmlCase.Skipped = &xmlSkipped{}
		}

		result.Cases = append(result.Cases, xmlCase)
	}

	// build output that isn't tied to a single test, e.g. compile errors
	if suite.output.Len() > 0 {
		result.SystemOut = &xmlSystemOut{Content: suite.output.String()}
	}

	return result
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}
