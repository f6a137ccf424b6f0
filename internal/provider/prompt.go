package provider

import (
	_ "embed"
	"strconv"
	"strings"

	"github.com/54b3r/eatwhat-go/internal/recipe"
)

//go:embed system_prompt.md
var systemPrompt string

// SystemPrompt is the fixed instruction sent ahead of every chat-completion
// request. It pins the answer to a fenced JSON recipe whose ingredient units
// come from recipe.ValidUnits.
var SystemPrompt = strings.TrimSpace(systemPrompt)

// BuildPrompt renders the user prompt for p. Unset list fields render as
// empty, unset numeric bounds render as empty, and the meal line is only
// present when meal is non-empty.
func BuildPrompt(p recipe.Preferences, meal recipe.MealType) string {
	var b strings.Builder
	b.WriteString("基于以下用户偏好生成推荐食谱:\n")
	b.WriteString("- 饮食类型: " + strings.Join(p.DietType, ", ") + "\n")
	b.WriteString("- 偏好菜系: " + strings.Join(p.CuisineType, ", ") + "\n")
	b.WriteString("- 过敏源: " + strings.Join(p.Allergies, ", ") + "\n")
	b.WriteString("- 饮食限制: " + strings.Join(p.Restrictions, ", ") + "\n")
	b.WriteString("- 卡路里范围: " + optInt(p.CaloriesMin) + "-" + optInt(p.CaloriesMax) + "卡路里\n")
	b.WriteString("- 最长烹饪时间: " + optInt(p.MaxCookingTime) + "分钟\n")
	if meal != "" {
		b.WriteString("- 餐次类型: " + string(meal))
	}
	b.WriteString("\n")
	return b.String()
}

// WorkflowInputs flattens p into the string inputs a recipe workflow
// expects. List fields are comma-joined; numeric bounds are omitted when
// unset.
func WorkflowInputs(p recipe.Preferences) map[string]string {
	in := map[string]string{
		"dietTypeCsv":     strings.Join(p.DietType, ","),
		"cuisineTypeCsv":  strings.Join(p.CuisineType, ","),
		"allergiesCsv":    strings.Join(p.Allergies, ","),
		"restrictionsCsv": strings.Join(p.Restrictions, ","),
	}
	if p.CaloriesMin > 0 {
		in["caloriesMin"] = strconv.Itoa(p.CaloriesMin)
	}
	if p.CaloriesMax > 0 {
		in["caloriesMax"] = strconv.Itoa(p.CaloriesMax)
	}
	if p.MaxCookingTime > 0 {
		in["maxCookingTime"] = strconv.Itoa(p.MaxCookingTime)
	}
	return in
}

func optInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
