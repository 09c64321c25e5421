// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/fulltext-harvester/pkg/types"
)

// Open-repository endpoints. Declared as vars so tests can substitute
// httptest servers.
var (
	idConverterBase = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"
	biocXMLBase     = "https://www.ncbi.nlm.nih.gov/research/bionlp/RESTful/pmcoa.cgi/BioC_xml/"
)

// converterTool identifies the harvester to the identifier converter.
const converterTool = "fulltext-harvester"

// biocErrorPrefix marks the converter's in-band "no result" body, which
// arrives with HTTP 200.
var biocErrorPrefix = []byte("[Error]")

// PMC resolves a DOI to a PMC accession via the NCBI identifier converter
// and downloads the full-text XML from the BioC endpoint.
type PMC struct {
	UserAgent string
}

func (s *PMC) Name() string { return "pmc" }

type converterResponse struct {
	Records []struct {
		PMCID string `json:"pmcid"`
	} `json:"records"`
}

func (s *PMC) Fetch(ctx context.Context, client *http.Client, doi, destStem string) (Outcome, error) {
	params := url.Values{
		"tool":   {converterTool},
		"ids":    {doi},
		"idtype": {"doi"},
		"format": {"json"},
	}
	body, err := getBody(ctx, client, idConverterBase+"?"+params.Encode(), s.UserAgent, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("identifier conversion: %w", err)
	}

	var conv converterResponse
	if err := json.Unmarshal(body, &conv); err != nil {
		return Outcome{}, fmt.Errorf("parsing converter response: %w", err)
	}
	if len(conv.Records) == 0 || conv.Records[0].PMCID == "" {
		return Outcome{}, fmt.Errorf("no PMC accession for %s", doi)
	}
	pmcid := conv.Records[0].PMCID

	xmlURL := biocXMLBase + pmcid + "/unicode"
	body, err = getBody(ctx, client, xmlURL, s.UserAgent, "")
	if err != nil {
		return Outcome{}, err
	}
	if bytes.HasPrefix(body, biocErrorPrefix) {
		return Outcome{}, fmt.Errorf("no full text at PMC for %s (%s)", doi, pmcid)
	}

	destPath := destStem + ".xml"
	if err := writeArtifact(destPath, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: types.KindXML, URL: xmlURL, Path: destPath}, nil
}
