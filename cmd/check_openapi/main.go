package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultSpecPath = "api/openapi.yaml"

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// field is one property a schema must declare.
type field struct {
	name     string
	typ      string
	required bool
}

var pictureFields = []field{
	{"id", "integer", true},
	{"title", "string", true},
	{"file", "string", true},
}

var errorFields = []field{
	{"error", "string", true},
	{"code", "string", true},
	{"requestId", "string", false},
}

var routes = map[string][]string{
	"/api/pictures":      {"get", "post"},
	"/api/pictures/{id}": {"delete"},
}

func main() {
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	path := defaultSpecPath
	if len(os.Args) == 2 {
		path = os.Args[1]
	}
	doc, err := loadDoc(path)
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI contract check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func checkDoc(doc openAPIDoc) error {
	for route, methods := range routes {
		ops, ok := doc.Paths[route]
		if !ok {
			return fmt.Errorf("path %q missing", route)
		}
		for _, m := range methods {
			if _, ok := ops[m]; !ok {
				return fmt.Errorf("path %q must declare %s", route, strings.ToUpper(m))
			}
		}
	}
	picture, err := getSchema(doc, "Picture")
	if err != nil {
		return err
	}
	if err := validateObject("Picture", picture, pictureFields); err != nil {
		return err
	}
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	return validateObject("ErrorResponse", errResp, errorFields)
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

func validateObject(name string, s schema, fields []field) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", name)
	}
	required := makeSet(s.Required)
	for _, f := range fields {
		if f.required && !required[f.name] {
			return fmt.Errorf("%s.required must include %q", name, f.name)
		}
		prop, ok := s.Properties[f.name]
		if !ok || prop.Type != f.typ {
			return fmt.Errorf("%s.%s must be %s", name, f.name, f.typ)
		}
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
