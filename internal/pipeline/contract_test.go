package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/types"
)

func TestExtractSignatures(t *testing.T) {
	src := `package x

func Add(a int, b int) int {
	return a + b
}

func (s *Service) Handle(req Request) (Response, error) {
	return Response{}, nil
}
`
	sigs := extractSignatures(src)
	require.Contains(t, sigs, "Add")
	assert.Equal(t, 2, sigs["Add"].arity)
	assert.Equal(t, "int", sigs["Add"].returnType)

	require.Contains(t, sigs, "Handle")
	assert.Equal(t, 1, sigs["Handle"].arity)
}

func TestSignatureCompatible(t *testing.T) {
	base := signature{arity: 2, returnType: "error"}

	assert.True(t, signatureCompatible(base, signature{arity: 2, returnType: "error"}))
	assert.True(t, signatureCompatible(base, signature{arity: 3, returnType: "error"}),
		"added trailing parameters are tolerated")
	assert.False(t, signatureCompatible(base, signature{arity: 1, returnType: "error"}),
		"removing parameters breaks existing callers")
	assert.False(t, signatureCompatible(base, signature{arity: 2, returnType: "int"}),
		"return type must match exactly")
}

func TestValidateSemanticContract_ExplicitRenamesTakePrecedence(t *testing.T) {
	fc, err := types.NewFileChange("mod.go", types.Modify,
		"package m\n\nfunc foo() {}\n",
		"package m\n\nfunc bar() {}\n", nil)
	require.NoError(t, err)
	patch := mustPatch(t, "p", fc)

	hcg := newFakeHCG("mod.go")
	// The heuristic detector would report nothing; the explicit list drives
	// the check and names a caller outside the patch.
	hcg.Callers = map[string][]string{"foo": {"caller.go"}}

	res, err := ValidateSemanticContract(context.Background(), hcg, patch, map[string]string{"foo": "bar"})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"caller.go"}, res.MissingFiles)
	assert.Equal(t, capability.RenameActionUpdateCallersFirst, res.Action)
}

func TestValidateSemanticContract_CallerUpdatedInPatchPasses(t *testing.T) {
	mod, err := types.NewFileChange("mod.go", types.Modify,
		"package m\n\nfunc foo() {}\n",
		"package m\n\nfunc bar() {}\n", nil)
	require.NoError(t, err)
	caller, err := types.NewFileChange("caller.go", types.Modify,
		"package m\n\nfunc use() { foo() }\n",
		"package m\n\nfunc use() { bar() }\n", nil)
	require.NoError(t, err)
	patch := mustPatch(t, "p", mod, caller)

	hcg := newFakeHCG("mod.go", "caller.go")
	hcg.Callers = map[string][]string{"foo": {"caller.go"}}

	res, err := ValidateSemanticContract(context.Background(), hcg, patch, map[string]string{"foo": "bar"})
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestValidateSemanticContract_NoRenamesPasses(t *testing.T) {
	fc, err := types.NewFileChange("a.go", types.Modify, "x\n", "y\n", nil)
	require.NoError(t, err)
	patch := mustPatch(t, "p", fc)

	res, err := ValidateSemanticContract(context.Background(), newFakeHCG("a.go"), patch, nil)
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestValidateSemanticContract_RenamePlusSignatureChangeRejected(t *testing.T) {
	mod, err := types.NewFileChange("mod.go", types.Modify,
		"package m\n\nfunc foo(a int) int {\n\treturn a\n}\n",
		"package m\n\nfunc bar(a int) string {\n\treturn \"\"\n}\n", nil)
	require.NoError(t, err)
	patch := mustPatch(t, "p", mod)

	hcg := newFakeHCG("mod.go")

	res, err := ValidateSemanticContract(context.Background(), hcg, patch, map[string]string{"foo": "bar"})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, capability.RenameActionSeparateFromSignature, res.Action)
}
