package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/refs"
	"go.yaml.in/yaml/v4"
)

type transformer struct {
	tree    *refs.Document
	baseURL string
}

// pathItemFields are the Path Item keys that are not operations.
var pathItemFields = map[string]bool{
	"$ref":        true,
	"summary":     true,
	"description": true,
	"servers":     true,
	"parameters":  true,
}

// Build constructs the document model from a normalized tree. A required
// field that is missing or has the wrong shape fails with a
// SchemaViolationError naming its location.
func Build(tree *refs.Document, opts ...Option) (*model.Document, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := &transformer{tree: tree, baseURL: o.baseURL}
	return t.document(tree.Root())
}

func (t *transformer) document(root *yaml.Node) (*model.Document, error) {
	version, err := stringField(root, "", "openapi", true)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{OpenAPI: version, BaseURL: t.baseURL}

	if info := refs.Field(root, "info"); info != nil {
		if doc.Info, err = transformInfo(info); err != nil {
			return nil, err
		}
	}
	if doc.Servers, err = t.transformServers(root, ""); err != nil {
		return nil, err
	}
	if doc.Tags, err = t.transformTags(root); err != nil {
		return nil, err
	}
	if doc.SecurityRequirements, err = transformRequirements(root, ""); err != nil {
		return nil, err
	}
	if doc.Extensions, err = t.extensions(root, ""); err != nil {
		return nil, err
	}

	components := refs.Field(root, "components")
	err = refs.Pairs(refs.Field(components, "schemas"), func(name string, n *yaml.Node) error {
		schema, err := t.componentSchema(name, n)
		if err != nil {
			return err
		}
		doc.Schemas = append(doc.Schemas, *schema)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = refs.Pairs(refs.Field(components, "securitySchemes"), func(name string, n *yaml.Node) error {
		scheme, err := t.transformSecurityScheme(name, n, at("components.securitySchemes", name))
		if err != nil {
			return err
		}
		doc.Security = append(doc.Security, scheme)
		return nil
	})
	if err != nil {
		return nil, err
	}

	paths := refs.Field(root, "paths")
	if paths != nil && paths.Kind != yaml.MappingNode {
		return nil, violation("", "paths", "expected object")
	}
	err = refs.Pairs(paths, func(pathStr string, n *yaml.Node) error {
		if strings.HasPrefix(pathStr, "x-") {
			return nil
		}
		item, err := t.transformPath(pathStr, n)
		if err != nil {
			return err
		}
		doc.Paths = append(doc.Paths, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func transformInfo(n *yaml.Node) (model.Info, error) {
	if n.Kind != yaml.MappingNode {
		return model.Info{}, violation("", "info", "expected object")
	}
	var info model.Info
	var err error
	if info.Title, err = stringField(n, "info", "title", false); err != nil {
		return info, err
	}
	if info.Description, err = stringField(n, "info", "description", false); err != nil {
		return info, err
	}
	if info.Version, err = stringField(n, "info", "version", false); err != nil {
		return info, err
	}
	return info, nil
}

func (t *transformer) transformServers(parent *yaml.Node, path string) ([]model.Server, error) {
	n := refs.Field(parent, "servers")
	if n == nil {
		return nil, nil
	}
	path = at(path, "servers")
	if n.Kind != yaml.SequenceNode {
		return nil, violation(path, "", "expected array")
	}

	var result []model.Server
	for i, s := range n.Content {
		spath := index(path, i)
		if s.Kind != yaml.MappingNode {
			return nil, violation(spath, "", "expected object")
		}
		raw, err := stringField(s, spath, "url", true)
		if err != nil {
			return nil, err
		}
		server := model.Server{}
		if server.Description, err = stringField(s, spath, "description", false); err != nil {
			return nil, err
		}
		if server.Variables, err = transformServerVariables(s, spath); err != nil {
			return nil, err
		}
		for name, v := range server.Variables {
			raw = strings.ReplaceAll(raw, "{"+name+"}", v.Default)
		}
		server.URL = model.ResolveServerURL(t.baseURL, raw)
		result = append(result, server)
	}
	return result, nil
}

func transformServerVariables(server *yaml.Node, path string) (map[string]model.ServerVariable, error) {
	n := refs.Field(server, "variables")
	if n == nil {
		return nil, nil
	}
	vars := make(map[string]model.ServerVariable)
	err := refs.Pairs(n, func(name string, v *yaml.Node) error {
		vpath := at(at(path, "variables"), name)
		def, err := stringField(v, vpath, "default", true)
		if err != nil {
			return err
		}
		desc, err := stringField(v, vpath, "description", false)
		if err != nil {
			return err
		}
		enum, err := stringList(refs.Field(v, "enum"), at(vpath, "enum"))
		if err != nil {
			return err
		}
		vars[name] = model.ServerVariable{Default: def, Enum: enum, Description: desc}
		return nil
	})
	return vars, err
}

func (t *transformer) transformTags(root *yaml.Node) ([]model.Tag, error) {
	n := refs.Field(root, "tags")
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, violation("", "tags", "expected array")
	}
	var result []model.Tag
	for i, tn := range n.Content {
		path := index("tags", i)
		name, err := stringField(tn, path, "name", true)
		if err != nil {
			return nil, err
		}
		tag := model.Tag{Name: name}
		if tag.Summary, err = stringField(tn, path, "summary", false); err != nil {
			return nil, err
		}
		if tag.Description, err = stringField(tn, path, "description", false); err != nil {
			return nil, err
		}
		if tag.Extensions, err = t.extensions(tn, path); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, nil
}

type pendingOperation struct {
	key    string
	method model.Method
	node   *yaml.Node
}

func (t *transformer) transformPath(pathStr string, n *yaml.Node) (model.PathItem, error) {
	jsonPath := at("paths", pathStr)
	item := model.PathItem{Path: pathStr}

	fields, err := t.pathItemPairs(n, jsonPath)
	if err != nil {
		return item, err
	}

	var pending []pendingOperation
	for _, f := range fields {
		switch {
		case f.key == "summary":
			item.Summary, err = scalarString(f.value, jsonPath, "summary")
		case f.key == "description":
			item.Description, err = scalarString(f.value, jsonPath, "description")
		case f.key == "parameters":
			item.Parameters, err = t.transformParameters(f.value, at(jsonPath, "parameters"))
		case f.key == "servers" || f.key == "$ref" || strings.HasPrefix(f.key, "x-"):
		default:
			// Verbs are matched case-insensitively; anything else holding an
			// object is kept as an operation so validation can reject the verb.
			if f.value.Kind == yaml.MappingNode {
				pending = append(pending, pendingOperation{
					key:    f.key,
					method: model.Method(strings.ToUpper(f.key)),
					node:   f.value,
				})
			}
		}
		if err != nil {
			return item, err
		}
	}

	merged := mergedNode(fields)
	if item.Servers, err = t.transformServers(merged, jsonPath); err != nil {
		return item, err
	}
	if item.Extensions, err = t.extensions(merged, jsonPath); err != nil {
		return item, err
	}

	// Use a stable sort for deterministic ordering
	sort.SliceStable(pending, func(i, j int) bool {
		return methodRank(pending[i].method) < methodRank(pending[j].method)
	})

	for _, p := range pending {
		op, err := t.transformOperation(p.method, pathStr, p.node, at(jsonPath, p.key), item.Parameters)
		if err != nil {
			return item, err
		}
		item.Operations = append(item.Operations, op)
	}

	return item, nil
}

type pair struct {
	key   string
	value *yaml.Node
}

// pathItemPairs returns the Path Item fields in order, merging a $ref
// target with its siblings. Siblings win.
func (t *transformer) pathItemPairs(n *yaml.Node, path string) ([]pair, error) {
	if n.Kind != yaml.MappingNode {
		return nil, violation(path, "", "expected object")
	}

	var siblings []pair
	_ = refs.Pairs(n, func(k string, v *yaml.Node) error {
		siblings = append(siblings, pair{k, v})
		return nil
	})

	ref, ok := refs.RefOf(n)
	if !ok {
		return siblings, nil
	}
	target, err := t.tree.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if target.Kind != yaml.MappingNode {
		return nil, violation(path, "$ref", "reference target must be an object")
	}

	override := make(map[string]*yaml.Node, len(siblings))
	for _, s := range siblings {
		if s.key != "$ref" {
			override[s.key] = s.value
		}
	}
	var result []pair
	_ = refs.Pairs(target, func(k string, v *yaml.Node) error {
		if o, ok := override[k]; ok {
			v = o
			delete(override, k)
		}
		result = append(result, pair{k, v})
		return nil
	})
	for _, s := range siblings {
		if _, ok := override[s.key]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}

func mergedNode(fields []pair) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fields {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.key}, f.value)
	}
	return n
}

func methodRank(m model.Method) int {
	for i, known := range model.Methods {
		if m == known {
			return i
		}
	}
	return len(model.Methods)
}

func (t *transformer) transformOperation(method model.Method, pathStr string, n *yaml.Node, path string, inherited []model.Parameter) (model.Operation, error) {
	op := model.Operation{Method: method, Path: pathStr}
	var err error

	if op.OperationID, err = stringField(n, path, "operationId", false); err != nil {
		return op, err
	}
	if op.Summary, err = stringField(n, path, "summary", false); err != nil {
		return op, err
	}
	if op.Description, err = stringField(n, path, "description", false); err != nil {
		return op, err
	}
	if op.Tags, err = stringList(refs.Field(n, "tags"), at(path, "tags")); err != nil {
		return op, err
	}
	if op.Deprecated, err = boolField(n, path, "deprecated"); err != nil {
		return op, err
	}

	own, err := t.transformParameters(refs.Field(n, "parameters"), at(path, "parameters"))
	if err != nil {
		return op, err
	}
	op.Parameters = mergeParameters(inherited, own)

	if rb := refs.Field(n, "requestBody"); rb != nil {
		if op.RequestBody, err = t.transformRequestBody(rb, at(path, "requestBody")); err != nil {
			return op, err
		}
	}

	err = refs.Pairs(refs.Field(n, "responses"), func(code string, rn *yaml.Node) error {
		if strings.HasPrefix(code, "x-") {
			return nil
		}
		resp, err := t.transformResponse(code, rn, at(at(path, "responses"), code))
		if err != nil {
			return err
		}
		op.Responses = append(op.Responses, resp)
		return nil
	})
	if err != nil {
		return op, err
	}

	if op.Servers, err = t.transformServers(n, path); err != nil {
		return op, err
	}
	if op.Security, err = transformRequirements(n, path); err != nil {
		return op, err
	}
	if op.Extensions, err = t.extensions(n, path); err != nil {
		return op, err
	}

	return op, nil
}

// mergeParameters applies operation parameters over path-level ones; a
// parameter is identified by (name, in).
func mergeParameters(inherited, own []model.Parameter) []model.Parameter {
	if len(inherited) == 0 {
		return own
	}
	result := append([]model.Parameter(nil), inherited...)
	for _, p := range own {
		replaced := false
		for i := range result {
			if result[i].Name == p.Name && result[i].In == p.In {
				result[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			result = append(result, p)
		}
	}
	return result
}

func (t *transformer) transformParameters(n *yaml.Node, path string) ([]model.Parameter, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, violation(path, "", "expected array")
	}
	var result []model.Parameter
	for i, pn := range n.Content {
		p, err := t.transformParameter(pn, index(path, i))
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (t *transformer) transformParameter(n *yaml.Node, path string) (model.Parameter, error) {
	var param model.Parameter

	n, _, err := t.tree.Deref(n)
	if err != nil {
		return param, err
	}
	if n.Kind != yaml.MappingNode {
		return param, violation(path, "", "expected object")
	}

	if param.Name, err = stringField(n, path, "name", true); err != nil {
		return param, err
	}
	in, err := stringField(n, path, "in", true)
	if err != nil {
		return param, err
	}
	param.In = model.ParameterLocation(strings.ToLower(in))
	if param.Description, err = stringField(n, path, "description", false); err != nil {
		return param, err
	}
	if param.Required, err = boolField(n, path, "required"); err != nil {
		return param, err
	}
	if param.Deprecated, err = boolField(n, path, "deprecated"); err != nil {
		return param, err
	}
	if param.Value, err = t.parameterValue(n, path, param.In); err != nil {
		return param, err
	}
	if param.Example, param.Examples, err = t.transformExamples(n, path); err != nil {
		return param, err
	}
	if param.Extensions, err = t.extensions(n, path); err != nil {
		return param, err
	}

	return param, nil
}

// parameterValue builds the schema-bearing or content-bearing variant.
// Exactly one of schema and content must be present.
func (t *transformer) parameterValue(n *yaml.Node, path string, in model.ParameterLocation) (model.ParameterValue, error) {
	schemaNode := refs.Field(n, "schema")
	contentNode := refs.Field(n, "content")

	switch {
	case schemaNode != nil && contentNode != nil:
		return nil, violation(path, "schema", "schema and content are mutually exclusive")
	case schemaNode == nil && contentNode == nil:
		return nil, violation(path, "schema", "one of schema or content is required")
	case contentNode != nil:
		content, err := t.transformContent(contentNode, at(path, "content"))
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, violation(path, "content", "must declare a media type")
		}
		return model.ContentValue{Content: content}, nil
	}

	schema, err := t.transformSchema(schemaNode, at(path, "schema"))
	if err != nil {
		return nil, err
	}
	style, err := stringField(n, path, "style", false)
	if err != nil {
		return nil, err
	}
	if style == "" {
		style = model.DefaultStyle(in)
	}
	explode := style == "form"
	if refs.Field(n, "explode") != nil {
		if explode, err = boolField(n, path, "explode"); err != nil {
			return nil, err
		}
	}
	allowReserved, err := boolField(n, path, "allowReserved")
	if err != nil {
		return nil, err
	}

	return model.SchemaValue{
		Schema:        schema,
		Style:         style,
		Explode:       explode,
		AllowReserved: allowReserved,
	}, nil
}

func (t *transformer) transformExamples(n *yaml.Node, path string) (any, []any, error) {
	var example any
	if en := refs.Field(n, "example"); en != nil {
		v, err := t.tree.Materialize(en)
		if err != nil {
			return nil, nil, err
		}
		example = v
	}

	var examples []any
	err := refs.Pairs(refs.Field(n, "examples"), func(name string, en *yaml.Node) error {
		en, _, err := t.tree.Deref(en)
		if err != nil {
			return err
		}
		vn := refs.Field(en, "value")
		if vn == nil {
			return nil
		}
		v, err := t.tree.Materialize(vn)
		if err != nil {
			return err
		}
		examples = append(examples, v)
		return nil
	})
	return example, examples, err
}

func (t *transformer) transformRequestBody(n *yaml.Node, path string) (*model.RequestBody, error) {
	n, _, err := t.tree.Deref(n)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.MappingNode {
		return nil, violation(path, "", "expected object")
	}

	body := &model.RequestBody{}
	if body.Description, err = stringField(n, path, "description", false); err != nil {
		return nil, err
	}
	if body.Required, err = boolField(n, path, "required"); err != nil {
		return nil, err
	}
	content := refs.Field(n, "content")
	if content == nil {
		return nil, violation(path, "content", "required field is missing")
	}
	if body.Content, err = t.transformContent(content, at(path, "content")); err != nil {
		return nil, err
	}
	return body, nil
}

func (t *transformer) transformContent(n *yaml.Node, path string) ([]model.MediaType, error) {
	if n.Kind != yaml.MappingNode {
		return nil, violation(path, "", "expected object")
	}
	var result []model.MediaType
	err := refs.Pairs(n, func(mediaType string, mn *yaml.Node) error {
		mpath := at(path, mediaType)
		if mn.Kind != yaml.MappingNode {
			return violation(mpath, "", "expected object")
		}
		mt := model.MediaType{MediaType: mediaType}
		if sn := refs.Field(mn, "schema"); sn != nil {
			schema, err := t.transformSchema(sn, at(mpath, "schema"))
			if err != nil {
				return err
			}
			mt.Schema = schema
		}
		if en := refs.Field(mn, "example"); en != nil {
			v, err := t.tree.Materialize(en)
			if err != nil {
				return err
			}
			mt.Example = v
		}
		result = append(result, mt)
		return nil
	})
	return result, err
}

func (t *transformer) transformResponse(code string, n *yaml.Node, path string) (model.Response, error) {
	response := model.Response{StatusCode: code}

	n, _, err := t.tree.Deref(n)
	if err != nil {
		return response, err
	}
	if n.Kind != yaml.MappingNode {
		return response, violation(path, "", "expected object")
	}
	if response.Description, err = stringField(n, path, "description", false); err != nil {
		return response, err
	}
	if cn := refs.Field(n, "content"); cn != nil {
		if response.Content, err = t.transformContent(cn, at(path, "content")); err != nil {
			return response, err
		}
	}

	err = refs.Pairs(refs.Field(n, "headers"), func(name string, hn *yaml.Node) error {
		hpath := at(at(path, "headers"), name)
		hn, _, err := t.tree.Deref(hn)
		if err != nil {
			return err
		}
		if hn.Kind != yaml.MappingNode {
			return violation(hpath, "", "expected object")
		}
		h := model.Header{Name: name}
		if h.Description, err = stringField(hn, hpath, "description", false); err != nil {
			return err
		}
		if h.Required, err = boolField(hn, hpath, "required"); err != nil {
			return err
		}
		if h.Deprecated, err = boolField(hn, hpath, "deprecated"); err != nil {
			return err
		}
		if h.Value, err = t.parameterValue(hn, hpath, model.LocationHeader); err != nil {
			return err
		}
		response.Headers = append(response.Headers, h)
		return nil
	})
	return response, err
}

// transformSchema materializes a schema reached from an operation. Only
// schemas reachable this way are inlined.
func (t *transformer) transformSchema(n *yaml.Node, path string) (*model.Schema, error) {
	target, ref, err := t.tree.Deref(n)
	if err != nil {
		return nil, err
	}
	if target.Kind != yaml.MappingNode && target.ShortTag() != "!!bool" {
		return nil, violation(path, "", "expected schema object")
	}

	value, err := t.tree.Materialize(n)
	if err != nil {
		return nil, err
	}

	schema := &model.Schema{Ref: ref, Value: value}
	if name, ok := strings.CutPrefix(ref, "#/components/schemas/"); ok {
		schema.Name = name
	}
	fillSchemaSummary(schema, target)
	if schema.Extensions, err = t.extensions(target, path); err != nil {
		return nil, err
	}
	return schema, nil
}

// componentSchema records a component declaration without materializing it.
func (t *transformer) componentSchema(name string, n *yaml.Node) (*model.Schema, error) {
	path := at("components.schemas", name)
	target, ref, err := t.tree.Deref(n)
	if err != nil {
		return nil, err
	}
	if target.Kind != yaml.MappingNode && target.ShortTag() != "!!bool" {
		return nil, violation(path, "", "expected schema object")
	}
	schema := &model.Schema{Name: name, Ref: ref}
	fillSchemaSummary(schema, target)
	if schema.Extensions, err = t.extensions(target, path); err != nil {
		return nil, err
	}
	return schema, nil
}

func fillSchemaSummary(s *model.Schema, n *yaml.Node) {
	if d := refs.Field(n, "description"); d != nil && d.Kind == yaml.ScalarNode {
		s.Description = d.Value
	}
	tn := refs.Field(n, "type")
	switch {
	case tn == nil:
	case tn.Kind == yaml.ScalarNode:
		s.Type = tn.Value
	case tn.Kind == yaml.SequenceNode:
		for _, c := range tn.Content {
			if c.Value != "null" {
				s.Type = c.Value
				break
			}
		}
	}
}

func (t *transformer) transformSecurityScheme(name string, n *yaml.Node, path string) (model.SecurityScheme, error) {
	ss := model.SecurityScheme{Name: name}

	n, _, err := t.tree.Deref(n)
	if err != nil {
		return ss, err
	}
	if n.Kind != yaml.MappingNode {
		return ss, violation(path, "", "expected object")
	}
	typ, err := stringField(n, path, "type", true)
	if err != nil {
		return ss, err
	}
	if ss.Description, err = stringField(n, path, "description", false); err != nil {
		return ss, err
	}

	switch typ {
	case "apiKey":
		paramName, err := stringField(n, path, "name", true)
		if err != nil {
			return ss, err
		}
		in, err := stringField(n, path, "in", true)
		if err != nil {
			return ss, err
		}
		ss.Value = model.APIKeyScheme{ParamName: paramName, In: model.ParameterLocation(in)}
	case "http":
		scheme, err := stringField(n, path, "scheme", true)
		if err != nil {
			return ss, err
		}
		bearer, err := stringField(n, path, "bearerFormat", false)
		if err != nil {
			return ss, err
		}
		ss.Value = model.HTTPScheme{Scheme: scheme, BearerFormat: bearer}
	case "oauth2":
		flows := refs.Field(n, "flows")
		if flows == nil || flows.Kind != yaml.MappingNode {
			return ss, violation(path, "flows", "required object is missing")
		}
		var oauth model.OAuth2Scheme
		err := refs.Pairs(flows, func(kind string, fn *yaml.Node) error {
			fpath := at(at(path, "flows"), kind)
			flow := model.OAuthFlow{Kind: kind, Scopes: make(map[string]string)}
			var err error
			if flow.AuthorizationURL, err = stringField(fn, fpath, "authorizationUrl", false); err != nil {
				return err
			}
			if flow.TokenURL, err = stringField(fn, fpath, "tokenUrl", false); err != nil {
				return err
			}
			if flow.RefreshURL, err = stringField(fn, fpath, "refreshUrl", false); err != nil {
				return err
			}
			_ = refs.Pairs(refs.Field(fn, "scopes"), func(scope string, d *yaml.Node) error {
				flow.Scopes[scope] = d.Value
				return nil
			})
			oauth.Flows = append(oauth.Flows, flow)
			return nil
		})
		if err != nil {
			return ss, err
		}
		ss.Value = oauth
	case "openIdConnect":
		u, err := stringField(n, path, "openIdConnectUrl", true)
		if err != nil {
			return ss, err
		}
		ss.Value = model.OpenIDConnectScheme{URL: u}
	case "mutualTLS":
		ss.Value = model.MutualTLSScheme{}
	default:
		return ss, violation(path, "type", fmt.Sprintf("unsupported security scheme type %q", typ))
	}

	return ss, nil
}

func transformRequirements(parent *yaml.Node, path string) ([]model.SecurityRequirement, error) {
	n := refs.Field(parent, "security")
	if n == nil {
		return nil, nil
	}
	path = at(path, "security")
	if n.Kind != yaml.SequenceNode {
		return nil, violation(path, "", "expected array")
	}
	result := []model.SecurityRequirement{}
	for i, rn := range n.Content {
		rpath := index(path, i)
		if rn.Kind != yaml.MappingNode {
			return nil, violation(rpath, "", "expected object")
		}
		var req model.SecurityRequirement
		err := refs.Pairs(rn, func(name string, sn *yaml.Node) error {
			scopes, err := stringList(sn, at(rpath, name))
			if err != nil {
				return err
			}
			req.Schemes = append(req.Schemes, model.RequiredScheme{Name: name, Scopes: scopes})
			return nil
		})
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, nil
}

// extensions reads the x-cuecode-* keys of an object and keeps the other
// x- keys as raw values.
func (t *transformer) extensions(n *yaml.Node, path string) (model.Extensions, error) {
	var ext model.Extensions
	var legacyPrompt string

	err := refs.Pairs(n, func(key string, node *yaml.Node) error {
		if !strings.HasPrefix(key, "x-") {
			return nil
		}
		var err error
		switch key {
		case "x-cuecode-prompt":
			ext.Prompt, err = scalarString(node, path, key)
		case "x-cuecode":
			legacyPrompt, err = scalarString(node, path, key)
		case "x-cuecode-prompts":
			if node.Kind == yaml.ScalarNode {
				ext.Prompts = []string{node.Value}
			} else {
				ext.Prompts, err = stringList(node, at(path, key))
			}
		case "x-cuecode-exclude":
			ext.Exclude, err = parseBool(node, path, key)
		case "x-cuecode-noun":
			ext.Noun, err = scalarString(node, path, key)
		default:
			var v any
			if v, err = t.tree.Materialize(node); err == nil {
				if ext.Raw == nil {
					ext.Raw = make(map[string]any)
				}
				ext.Raw[key] = v
			}
		}
		return err
	})
	if ext.Prompt == "" {
		ext.Prompt = legacyPrompt
	}
	return ext, err
}

func violation(path, field, msg string) error {
	return &apperrors.SchemaViolationError{Path: path, Field: field, Message: msg}
}

func at(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func stringField(n *yaml.Node, path, key string, required bool) (string, error) {
	v := refs.Field(n, key)
	if v == nil {
		if required {
			return "", violation(path, key, "required field is missing")
		}
		return "", nil
	}
	return scalarString(v, path, key)
}

func scalarString(v *yaml.Node, path, key string) (string, error) {
	if v.Kind != yaml.ScalarNode || v.ShortTag() == "!!null" {
		return "", violation(path, key, "expected string")
	}
	return v.Value, nil
}

func boolField(n *yaml.Node, path, key string) (bool, error) {
	v := refs.Field(n, key)
	if v == nil {
		return false, nil
	}
	return parseBool(v, path, key)
}

func parseBool(v *yaml.Node, path, key string) (bool, error) {
	if v.Kind == yaml.ScalarNode {
		if b, err := strconv.ParseBool(v.Value); err == nil {
			return b, nil
		}
	}
	return false, violation(path, key, "expected boolean")
}

func stringList(n *yaml.Node, path string) ([]string, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, violation(path, "", "expected array of strings")
	}
	result := make([]string, 0, len(n.Content))
	for i, c := range n.Content {
		if c.Kind != yaml.ScalarNode {
			return nil, violation(index(path, i), "", "expected string")
		}
		result = append(result, c.Value)
	}
	return result, nil
}
