package pipeline

import (
	"context"
	"regexp"
	"strings"

	"codenerd-core/internal/capability"
	"codenerd-core/internal/logging"
	"codenerd-core/internal/types"
)

// funcSigRe extracts a Go function signature's parameter list and return
// clause, used for the arity/return-type comparison in signature
// compatibility checking (§4.4 S5).
var funcSigRe = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(([^)]*)\)\s*(\([^)]*\)|[A-Za-z_0-9*\[\].,\s]*)\s*\{`)

type signature struct {
	arity      int
	returnType string
}

func extractSignatures(content string) map[string]signature {
	out := map[string]signature{}
	for _, m := range funcSigRe.FindAllStringSubmatch(content, -1) {
		name, params, ret := m[1], m[2], m[3]
		arity := 0
		if strings.TrimSpace(params) != "" {
			arity = len(strings.Split(params, ","))
		}
		out[name] = signature{arity: arity, returnType: strings.Join(strings.Fields(ret), " ")}
	}
	return out
}

// signatureCompatible implements "arity tolerant, return-type equal,
// existing exceptions preserved" (§4.4 S5): return types must match
// exactly, and the new arity may only grow (added trailing parameters
// are tolerated; removing parameters is not, since existing callers
// would silently break).
func signatureCompatible(old, new signature) bool {
	if old.returnType != new.returnType {
		return false
	}
	return new.arity >= old.arity
}

// ValidateSemanticContract runs §4.4 S5: identify renames (explicit list
// takes precedence over the HCG's heuristic detection), verify signature
// compatibility for each rename, and verify every caller of a renamed
// symbol is itself touched by the patch. explicitRenames may be nil, in
// which case hcg.DetectRenames supplies the heuristic fallback.
func ValidateSemanticContract(ctx context.Context, hcg capability.HCG, patch types.Patch, explicitRenames map[string]string) (capability.RenameCheckResult, error) {
	renames := explicitRenames
	if len(renames) == 0 {
		detected, err := hcg.DetectRenames(ctx, patch)
		if err != nil {
			return capability.RenameCheckResult{}, err
		}
		renames = detected
	}
	if len(renames) == 0 {
		return capability.RenameCheckResult{Passed: true}, nil
	}

	touched := map[string]types.FileChange{}
	for _, f := range patch.Files {
		touched[f.Path] = f
	}

	var missing []string
	signatureBroken := false

	for oldName, newName := range renames {
		callers, err := hcg.FindCallers(ctx, oldName, "")
		if err != nil {
			return capability.RenameCheckResult{}, err
		}
		for _, callerPath := range callers {
			fc, inPatch := touched[callerPath]
			if !inPatch {
				missing = append(missing, callerPath)
				continue
			}
			if strings.Contains(fc.NewContent, oldName) && !strings.Contains(fc.NewContent, newName) {
				missing = append(missing, callerPath)
			}
		}

		for _, f := range patch.Files {
			oldSigs := extractSignatures(f.OldContent)
			newSigs := extractSignatures(f.NewContent)
			oldSig, hasOld := oldSigs[oldName]
			newSig, hasNew := newSigs[newName]
			if hasOld && hasNew && !signatureCompatible(oldSig, newSig) {
				signatureBroken = true
			}
		}
	}

	if len(missing) > 0 {
		logging.Pipeline("S5: rename(s) missing caller updates in %v", missing)
		return capability.RenameCheckResult{
			Passed:       false,
			MissingFiles: dedupe(missing),
			Action:       capability.RenameActionUpdateCallersFirst,
		}, nil
	}
	if signatureBroken {
		logging.Pipeline("S5: rename bundled with an incompatible signature change")
		return capability.RenameCheckResult{
			Passed: false,
			Action: capability.RenameActionSeparateFromSignature,
		}, nil
	}
	return capability.RenameCheckResult{Passed: true}, nil
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
