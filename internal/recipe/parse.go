package recipe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// fencedJSON matches a ```json fenced block and captures its body.
var fencedJSON = regexp.MustCompile("(?s)```json[ \t]*\r?\n?(.*?)\r?\n?[ \t]*```")

// ExtractJSONBlock returns the body of the first ```json fenced block in s.
// The boolean is false when s contains no such block.
func ExtractJSONBlock(s string) (string, bool) {
	m := fencedJSON.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// stripFences removes a surrounding Markdown code fence, with or without a
// json language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if body, ok := ExtractJSONBlock(s); ok {
		return body
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Parse validates a free-text model response and returns the recipe it
// describes. The response may be wrapped in a ```json fence. Numeric fields
// must be JSON numbers; a nutritionFacts array contributes its first element.
func Parse(text string) (*Recipe, error) {
	body := stripFences(text)
	if body == "" {
		return nil, &ParseError{Reason: "empty response"}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &ParseError{Reason: "malformed JSON: " + err.Error()}
	}
	return decode(raw, false)
}

// ParseOutputs validates the structured outputs object returned by a
// workflow run. The recipe may sit at the top level or be nested under
// "outputs" or "data"; a "text" field holding a fenced JSON answer is also
// accepted. Numeric fields may arrive as numeric strings. Image URLs found
// under files[] and json[] populate ImageURL and GeneratedImages, and Img
// falls back to the first of them.
func ParseOutputs(outputs map[string]any) (*Recipe, error) {
	o := unwrapOutputs(outputs)
	if len(o) == 0 {
		return nil, &ParseError{Reason: "workflow returned no outputs"}
	}

	var (
		r   *Recipe
		err error
	)
	if text, ok := o["text"].(string); ok && o["name"] == nil {
		r, err = Parse(text)
	} else {
		r, err = decode(o, true)
	}
	if err != nil {
		return nil, err
	}

	if urls := imageURLs(o); len(urls) > 0 {
		if r.Img == "" {
			r.Img = urls[0]
		}
		r.ImageURL = urls[0]
		r.GeneratedImages = urls
	}
	return r, nil
}

// unwrapOutputs descends through "outputs" and "data" wrappers until it
// reaches an object that carries a recipe name.
func unwrapOutputs(m map[string]any) map[string]any {
	for depth := 0; m != nil && depth < 3; depth++ {
		if _, ok := m["name"]; ok {
			return m
		}
		if next, ok := m["outputs"].(map[string]any); ok {
			m = next
			continue
		}
		if next, ok := m["data"].(map[string]any); ok {
			m = next
			continue
		}
		break
	}
	return m
}

// imageURLs collects generated image URLs from files[].url (or remote_url),
// json[].images[].url and json[].data[].url, in that order.
func imageURLs(o map[string]any) []string {
	var urls []string
	if files, ok := o["files"].([]any); ok {
		for _, f := range files {
			fm, _ := f.(map[string]any)
			if u, ok := fm["url"].(string); ok {
				urls = append(urls, u)
			} else if u, ok := fm["remote_url"].(string); ok {
				urls = append(urls, u)
			}
		}
	}
	if items, ok := o["json"].([]any); ok {
		for _, it := range items {
			im, _ := it.(map[string]any)
			for _, key := range []string{"images", "data"} {
				list, _ := im[key].([]any)
				for _, e := range list {
					em, _ := e.(map[string]any)
					if u, ok := em["url"].(string); ok {
						urls = append(urls, u)
					}
				}
			}
		}
	}
	return urls
}

// decoder applies field validation. lenient accepts numeric strings where a
// number is required.
type decoder struct {
	lenient bool
}

func decode(m map[string]any, lenient bool) (*Recipe, error) {
	d := decoder{lenient: lenient}
	r := &Recipe{}

	name, ok := m["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, &ParseError{Field: "name", Reason: "required non-empty string"}
	}
	r.Name = name

	ings, err := d.ingredients(m["ingredients"])
	if err != nil {
		return nil, err
	}
	r.Ingredients = ings

	nf, err := d.nutrition(m["nutritionFacts"])
	if err != nil {
		return nil, err
	}

	calories := m["calories"]
	if calories == nil {
		calories = nf["calories"]
	}
	if r.Calories, err = d.number(calories, "calories"); err != nil {
		return nil, err
	}
	if r.CookingTime, err = d.number(m["cookingTime"], "cookingTime"); err != nil {
		return nil, err
	}

	r.NutritionFacts.Calories = r.Calories
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"protein", &r.NutritionFacts.Protein},
		{"fat", &r.NutritionFacts.Fat},
		{"carbs", &r.NutritionFacts.Carbs},
		{"fiber", &r.NutritionFacts.Fiber},
	} {
		if *f.dst, err = d.number(nf[f.key], "nutritionFacts."+f.key); err != nil {
			return nil, err
		}
	}

	if r.Steps, err = steps(m["steps"]); err != nil {
		return nil, err
	}
	if r.CuisineType, err = stringList(m["cuisineType"], "cuisineType"); err != nil {
		return nil, err
	}
	if r.DietType, err = stringList(m["dietType"], "dietType"); err != nil {
		return nil, err
	}
	if img, ok := m["img"].(string); ok {
		r.Img = img
	}
	return r, nil
}

func (d decoder) ingredients(v any) ([]Ingredient, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, &ParseError{Field: "ingredients", Reason: "required non-empty list"}
	}
	out := make([]Ingredient, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("ingredients[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &ParseError{Field: path, Reason: "must be an object"}
		}
		name, ok := obj["name"].(string)
		if !ok || name == "" {
			return nil, &ParseError{Field: path + ".name", Reason: "required non-empty string"}
		}
		amount, err := d.number(obj["amount"], path+".amount")
		if err != nil {
			return nil, err
		}
		unit, _ := obj["unit"].(string)
		if !ValidUnit(unit) {
			return nil, &ParseError{Field: path + ".unit", Reason: fmt.Sprintf("%q is not an allowed unit", unit)}
		}
		out = append(out, Ingredient{Name: name, Amount: amount, Unit: unit})
	}
	return out, nil
}

func (d decoder) nutrition(v any) (map[string]any, error) {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil, &ParseError{Field: "nutritionFacts", Reason: "empty list"}
		}
		v = list[0]
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &ParseError{Field: "nutritionFacts", Reason: "required object"}
	}
	return obj, nil
}

func (d decoder) number(v any, field string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	case string:
		if d.lenient {
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, nil
			}
		}
		return 0, &ParseError{Field: field, Reason: fmt.Sprintf("must be a number, got %q", n)}
	case nil:
		return 0, &ParseError{Field: field, Reason: "required number"}
	}
	return 0, &ParseError{Field: field, Reason: fmt.Sprintf("must be a number, got %T", v)}
}

// steps accepts a list of strings or of {"order", "description"} objects.
func steps(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, &ParseError{Field: "steps", Reason: "required non-empty list"}
	}
	out := make([]string, 0, len(list))
	for i, s := range list {
		switch step := s.(type) {
		case string:
			out = append(out, step)
		case map[string]any:
			desc, ok := step["description"].(string)
			if !ok {
				return nil, &ParseError{Field: fmt.Sprintf("steps[%d].description", i), Reason: "required string"}
			}
			out = append(out, desc)
		default:
			return nil, &ParseError{Field: fmt.Sprintf("steps[%d]", i), Reason: "must be a string"}
		}
	}
	return out, nil
}

// stringList accepts an optional list of strings or a single string.
func stringList(v any, field string) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		if l == "" {
			return nil, nil
		}
		return []string{l}, nil
	case []any:
		out := make([]string, 0, len(l))
		for i, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, &ParseError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "must be a string"}
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, &ParseError{Field: field, Reason: "must be a list of strings"}
}
