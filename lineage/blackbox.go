package lineage

import (
	"fmt"
	"strings"

	"fluent/tuple"
)

// FragmentProducer returns the creative part of a black-box lineage
// registration (spec.md §4.6): given the placeholder names the generated
// impl function will bind its parameters to — time_inserted first, then
// the request's extra argument columns, then the response's extra result
// columns, in that order — it returns a SQL fragment selecting the source
// collection, hash, and time_inserted of the request tuple that produced
// the response. Grounded on
// _examples/original_source/src/fluent/fluent_executor.h's documented
// RegisterBlackBoxLineage example.
type FragmentProducer func(placeholders []string) string

// RegisterBlackBox validates the request/response channel shapes spec.md
// §4.6 requires and installs the impl/wrapper SQL functions it describes.
//
// Request columns must begin (dst_addr, src_addr, id) typed
// (address, address, int64). Response columns must begin (addr, id) typed
// (address, int64). Both constraints are validated before anything is
// executed against the sink.
func RegisterBlackBox(
	sink Sink,
	requestName string, requestSchema tuple.Schema,
	responseName string, responseSchema tuple.Schema,
	produce FragmentProducer,
) error {
	if err := validateRequestShape(requestSchema); err != nil {
		return fmt.Errorf("lineage: black-box request %s: %w", requestName, err)
	}
	if err := validateResponseShape(responseSchema); err != nil {
		return fmt.Errorf("lineage: black-box response %s: %w", responseName, err)
	}

	requestArgs := requestSchema.Names[3:]
	requestArgTypes := requestSchema.Types[3:]
	responseArgs := responseSchema.Names[2:]
	responseArgTypes := responseSchema.Types[2:]

	implName := responseName + "_lineage_impl"
	wrapperName := responseName + "_lineage"

	implParams := []string{"time_inserted BIGINT"}
	placeholders := []string{"$1"}
	for i, name := range requestArgs {
		implParams = append(implParams, fmt.Sprintf("%s %s", name, sqlType(requestArgTypes[i])))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1))
	}
	for i, name := range responseArgs {
		implParams = append(implParams, fmt.Sprintf("%s %s", name, sqlType(responseArgTypes[i])))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(placeholders)+1))
	}

	fragment := produce(placeholders)

	implSQL := fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s(%s)
RETURNS TABLE(collection_name TEXT, hash BIGINT, time_inserted BIGINT)
AS $impl$
%s
$impl$ LANGUAGE SQL`, implName, strings.Join(implParams, ", "), fragment)

	if err := sink.Exec(implSQL); err != nil {
		return fmt.Errorf("lineage: install %s: %w", implName, err)
	}

	callArgs := []string{"Req.time_inserted"}
	for _, name := range requestArgs {
		callArgs = append(callArgs, "Req."+name)
	}
	for _, name := range responseArgs {
		callArgs = append(callArgs, "Resp."+name)
	}

	wrapperSQL := fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s(req_id BIGINT)
RETURNS TABLE(collection_name TEXT, hash BIGINT, time_inserted BIGINT)
AS $wrap$
  SELECT %s(%s)
  FROM %s Req, %s Resp
  WHERE Req.id = req_id AND Resp.id = req_id
$wrap$ LANGUAGE SQL`, wrapperName, implName, strings.Join(callArgs, ", "), requestName, responseName)

	if err := sink.Exec(wrapperSQL); err != nil {
		return fmt.Errorf("lineage: install %s: %w", wrapperName, err)
	}
	return nil
}

func validateRequestShape(s tuple.Schema) error {
	if s.Arity() < 3 {
		return fmt.Errorf("request channel must have at least 3 columns, got %d", s.Arity())
	}
	wantNames := []string{"dst_addr", "src_addr", "id"}
	wantTypes := []tuple.ColumnType{tuple.Address, tuple.Address, tuple.Int64}
	for i := range wantNames {
		if s.Names[i] != wantNames[i] {
			return fmt.Errorf("column %d must be named %q, got %q", i, wantNames[i], s.Names[i])
		}
		if s.Types[i] != wantTypes[i] {
			return fmt.Errorf("column %q has wrong type", s.Names[i])
		}
	}
	return nil
}

func validateResponseShape(s tuple.Schema) error {
	if s.Arity() < 2 {
		return fmt.Errorf("response channel must have at least 2 columns, got %d", s.Arity())
	}
	wantNames := []string{"addr", "id"}
	wantTypes := []tuple.ColumnType{tuple.Address, tuple.Int64}
	for i := range wantNames {
		if s.Names[i] != wantNames[i] {
			return fmt.Errorf("column %d must be named %q, got %q", i, wantNames[i], s.Names[i])
		}
		if s.Types[i] != wantTypes[i] {
			return fmt.Errorf("column %q has wrong type", s.Names[i])
		}
	}
	return nil
}
