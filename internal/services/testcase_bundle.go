package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jjudge-oj/judgeserver/types"
)

var testcaseFilenamePattern = regexp.MustCompile(`^\d+\.(in|out)$`)

// maxTestcaseFileBytes caps a single extracted testcase file.
const maxTestcaseFileBytes = 64 << 20

// ParseTestcaseBundle validates a tar.gz testcase bundle and returns its
// metadata and testcases. Entries are named <order>.in and <order>.out with
// orders 1..n; visible lists the orders shown to every user.
func ParseTestcaseBundle(filename string, data []byte, visible []int) (types.TestcaseBundle, []types.Testcase, error) {
	if len(data) == 0 {
		return types.TestcaseBundle{}, nil, invalid("bundle", "empty bundle data")
	}

	lower := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return types.TestcaseBundle{}, nil, invalid("bundle", "zip bundles are not supported")
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
	default:
		return types.TestcaseBundle{}, nil, invalid("bundle", "unsupported bundle format")
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return types.TestcaseBundle{}, nil, invalid("bundle", "invalid tar.gz bundle")
	}
	defer gr.Close()

	testcases, err := readTestcasesFromTar(tar.NewReader(gr))
	if err != nil {
		return types.TestcaseBundle{}, nil, err
	}

	visibleSet := make(map[int]bool, len(visible))
	for _, order := range visible {
		if order < 1 || order > len(testcases) {
			return types.TestcaseBundle{}, nil, invalid("visible", "testcase %d does not exist", order)
		}
		visibleSet[order] = true
	}
	orders := make([]int, 0, len(visibleSet))
	for i := range testcases {
		if visibleSet[i+1] {
			testcases[i].Visible = true
			orders = append(orders, i+1)
		}
	}

	hash := sha256.Sum256(data)
	bundle := types.TestcaseBundle{
		SHA256:  hex.EncodeToString(hash[:]),
		Count:   len(testcases),
		Visible: orders,
	}
	return bundle, testcases, nil
}

// LoadTestcaseBundle parses a stored bundle, checking it against the hash
// recorded when it was imported.
func LoadTestcaseBundle(bundle types.TestcaseBundle, data []byte) ([]types.Testcase, error) {
	hash := sha256.Sum256(data)
	if bundle.SHA256 != "" && hex.EncodeToString(hash[:]) != bundle.SHA256 {
		return nil, fmt.Errorf("testcase bundle %s: checksum mismatch", bundle.ObjectKey)
	}
	_, testcases, err := ParseTestcaseBundle(bundle.ObjectKey, data, bundle.Visible)
	if err != nil {
		return nil, fmt.Errorf("testcase bundle %s: %w", bundle.ObjectKey, err)
	}
	return testcases, nil
}

func readTestcasesFromTar(tr *tar.Reader) ([]types.Testcase, error) {
	type pair struct {
		in, out       string
		hasIn, hasOut bool
	}
	pairs := make(map[int]*pair)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid("bundle", "invalid tar.gz bundle")
		}
		if header.FileInfo().IsDir() {
			continue
		}
		if !header.FileInfo().Mode().IsRegular() {
			return nil, invalid("bundle", "bundle contains unsupported entries")
		}
		if err := validateBundleFilename(header.Name); err != nil {
			return nil, err
		}

		base := path.Base(path.Clean(header.Name))
		order, ext, err := parseTestcaseFilename(base)
		if err != nil {
			return nil, err
		}

		content, err := io.ReadAll(io.LimitReader(tr, maxTestcaseFileBytes+1))
		if err != nil {
			return nil, invalid("bundle", "failed to read %s", base)
		}
		if len(content) > maxTestcaseFileBytes {
			return nil, invalid("bundle", "%s is too large", base)
		}

		p := pairs[order]
		if p == nil {
			p = &pair{}
			pairs[order] = p
		}
		switch ext {
		case "in":
			if p.hasIn {
				return nil, invalid("bundle", "duplicate testcase input: %d.in", order)
			}
			p.in, p.hasIn = string(content), true
		case "out":
			if p.hasOut {
				return nil, invalid("bundle", "duplicate testcase output: %d.out", order)
			}
			p.out, p.hasOut = string(content), true
		}
	}

	if len(pairs) == 0 {
		return nil, invalid("bundle", "bundle has no testcases")
	}

	orders := make([]int, 0, len(pairs))
	for order, p := range pairs {
		if !p.hasIn || !p.hasOut {
			return nil, invalid("bundle", "testcase %d must have both .in and .out files", order)
		}
		orders = append(orders, order)
	}
	sort.Ints(orders)

	testcases := make([]types.Testcase, 0, len(orders))
	for i, order := range orders {
		if order != i+1 {
			return nil, invalid("bundle", "testcase orders must be consecutive starting at 1")
		}
		testcases = append(testcases, types.Testcase{Input: pairs[order].in, Output: pairs[order].out})
	}
	return testcases, nil
}

func parseTestcaseFilename(base string) (int, string, error) {
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, "."+ext)
	order, err := strconv.Atoi(name)
	if ext == "" || err != nil || order < 1 {
		return 0, "", invalid("bundle", "invalid testcase filename: %s", base)
	}
	return order, ext, nil
}

func validateBundleFilename(name string) error {
	clean := path.Clean(name)
	if clean == "." {
		return invalid("bundle", "invalid testcase filename")
	}
	base := path.Base(clean)
	if base != clean {
		return invalid("bundle", "bundle must not contain directories")
	}
	if strings.Contains(base, `\`) {
		return invalid("bundle", "invalid testcase filename")
	}
	if !testcaseFilenamePattern.MatchString(base) {
		return invalid("bundle", "invalid testcase filename: %s", base)
	}
	return nil
}
