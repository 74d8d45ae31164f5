package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas   map[string]schema   `yaml:"schemas"`
		Responses map[string]response `yaml:"responses"`
	} `yaml:"components"`
}

type operation struct {
	Summary   string                `yaml:"summary"`
	Security  []map[string][]string `yaml:"security"`
	Responses map[string]response   `yaml:"responses"`
}

type response struct {
	Ref         string               `yaml:"$ref"`
	Description string               `yaml:"description"`
	Content     map[string]mediaType `yaml:"content"`
}

type mediaType struct {
	Schema schema `yaml:"schema"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	AllOf      []schema          `yaml:"allOf"`
}

const (
	schemaPrefix   = "#/components/schemas/"
	responsePrefix = "#/components/responses/"
)

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "options": true,
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if errs := check(doc); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(1)
	}
	fmt.Println("OpenAPI contract check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	return doc, nil
}

// check returns every contract violation, sorted for stable output.
func check(doc openAPIDoc) []error {
	var errs []error
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(errResp); err != nil {
		errs = append(errs, err)
	}
	for name, s := range doc.Components.Schemas {
		if strings.HasSuffix(name, "List") {
			if err := validateList(name, s); err != nil {
				errs = append(errs, err)
			}
		}
		for _, ref := range schemaRefs(s) {
			if err := resolveSchema(doc, ref); err != nil {
				errs = append(errs, fmt.Errorf("schema %s: %w", name, err))
			}
		}
	}
	for name, r := range doc.Components.Responses {
		if !returnsErrorResponse(r) {
			errs = append(errs, fmt.Errorf("response %s must return ErrorResponse", name))
		}
	}
	for path, item := range doc.Paths {
		for method, node := range item {
			if !httpMethods[method] {
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err))
				continue
			}
			errs = append(errs, validateOperation(doc, strings.ToUpper(method)+" "+path, op)...)
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "field", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func validateList(name string, s schema) error {
	if !makeSet(s.Required)["items"] {
		return fmt.Errorf("%s.required must include \"items\"", name)
	}
	items, ok := s.Properties["items"]
	if !ok || items.Type != "array" || items.Items == nil {
		return fmt.Errorf("%s.items must be array", name)
	}
	if !strings.HasPrefix(strings.TrimSpace(items.Items.Ref), schemaPrefix) {
		return fmt.Errorf("%s.items.items must reference a schema", name)
	}
	for _, field := range []string{"total", "limit", "offset"} {
		if prop, ok := s.Properties[field]; ok && prop.Type != "integer" {
			return fmt.Errorf("%s.%s must be integer", name, field)
		}
	}
	return nil
}

func validateOperation(doc openAPIDoc, name string, op operation) []error {
	var errs []error
	if strings.TrimSpace(op.Summary) == "" {
		errs = append(errs, fmt.Errorf("%s: summary missing", name))
	}
	success := false
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			success = true
		}
		if ref := strings.TrimSpace(r.Ref); ref != "" {
			key, ok := strings.CutPrefix(ref, responsePrefix)
			if _, found := doc.Components.Responses[key]; !ok || !found {
				errs = append(errs, fmt.Errorf("%s: response %s references unknown %q", name, code, ref))
			}
			continue
		}
		for _, media := range r.Content {
			for _, sref := range schemaRefs(media.Schema) {
				if err := resolveSchema(doc, sref); err != nil {
					errs = append(errs, fmt.Errorf("%s: response %s: %w", name, code, err))
				}
			}
		}
	}
	if !success {
		errs = append(errs, fmt.Errorf("%s: no 2xx response", name))
	}
	if _, ok := op.Responses["default"]; !ok {
		errs = append(errs, fmt.Errorf("%s: default error response missing", name))
	}
	if len(op.Security) > 0 {
		if _, ok := op.Responses["401"]; !ok {
			errs = append(errs, fmt.Errorf("%s: secured operation must document 401", name))
		}
	}
	return errs
}

func returnsErrorResponse(r response) bool {
	media, ok := r.Content["application/json"]
	return ok && strings.TrimSpace(media.Schema.Ref) == schemaPrefix+"ErrorResponse"
}

func schemaRefs(s schema) []string {
	var refs []string
	if ref := strings.TrimSpace(s.Ref); ref != "" {
		refs = append(refs, ref)
	}
	if s.Items != nil {
		refs = append(refs, schemaRefs(*s.Items)...)
	}
	for _, prop := range s.Properties {
		refs = append(refs, schemaRefs(prop)...)
	}
	for _, part := range s.AllOf {
		refs = append(refs, schemaRefs(part)...)
	}
	return refs
}

func resolveSchema(doc openAPIDoc, ref string) error {
	key, ok := strings.CutPrefix(ref, schemaPrefix)
	if !ok {
		return fmt.Errorf("unsupported reference %q", ref)
	}
	if _, found := doc.Components.Schemas[key]; !found {
		return fmt.Errorf("unknown schema %q", ref)
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
