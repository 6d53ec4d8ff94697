package handler_test

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

func compileContract(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "contracts", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func requireContract(t *testing.T, schema *jsonschema.Schema, payload envelope) {
	t.Helper()
	var document interface{}
	require.NoError(t, json.Unmarshal(payload.raw, &document))
	require.NoError(t, schema.Validate(document))
}

func TestJudgeExecuteContract(t *testing.T) {
	schema := compileContract(t, "judge_execute.schema.json")
	a := newTestApp(t)

	status, payload := a.do(t, http.MethodPost, "/api/v2/judge/execute", 1, "student", fiber.Map{
		"language": "python",
		"code":     "print(sum(map(int, input().split())))",
		"input":    "3\n4\n",
	})
	require.Equal(t, fiber.StatusOK, status)
	requireContract(t, schema, payload)

	status, payload = a.do(t, http.MethodPost, "/api/v2/judge/execute", 1, "student", fiber.Map{
		"language": "python",
		"code":     "print(int(input()))",
		"input":    "abc",
	})
	require.Equal(t, fiber.StatusOK, status)
	requireContract(t, schema, payload)
}

func TestJudgeSubmitContractHidesHiddenOutputs(t *testing.T) {
	schema := compileContract(t, "judge_submission.schema.json")
	a := newTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/api/v2/judge/problems", 9, "teacher", fiber.Map{
		"title":     "Contract Sum",
		"statement": "Print a + b.",
		"samples":   []fiber.Map{{"input": "1 2", "expected_output": "3"}},
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = a.do(t, http.MethodPost, "/api/v2/judge/problems/contract-sum/test-cases", 9, "teacher", fiber.Map{
		"test_cases": []fiber.Map{
			{"input": "10 20", "expected_output": "30"},
			{"input": "5 5", "expected_output": "11"},
		},
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, payload := a.do(t, http.MethodPost, "/api/v2/judge/problems/contract-sum/submit", 2, "student", fiber.Map{
		"language": "python", "code": "print(sum(map(int, input().split())))",
	})
	require.Equal(t, fiber.StatusCreated, status)
	requireContract(t, schema, payload)
}

func TestJudgeSubmitContractRejectsLeakedHiddenOutput(t *testing.T) {
	schema := compileContract(t, "judge_submission.schema.json")

	leaked := []byte(`{
		"success": true,
		"message": "submitted",
		"data": {
			"id": 1, "problem_id": 1, "student_id": 2, "language": "python",
			"status": "failed", "score": 0, "total_points": 1,
			"created_at": "2026-10-19T10:00:00Z",
			"test_results": [
				{"test_case_id": 4, "position": 1, "is_hidden": true, "passed": false, "runtime_ms": 3, "expected_output": "11"}
			]
		}
	}`)

	var document interface{}
	require.NoError(t, json.Unmarshal(leaked, &document))
	require.Error(t, schema.Validate(document))
}
