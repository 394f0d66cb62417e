package model

// NumPhases is the number of ordered creation phases. Deletes run through the
// same phases in reverse before any create or update begins.
const NumPhases = 9

// phaseByType pins every object type to its creation phase. Lower phases are
// prerequisites of higher ones: definitions before containers, containers
// before records, records before the links that reference them.
var phaseByType = map[ObjectType]int{
	ObjectDeviceType:    0,
	ObjectTagGroup:      0,
	ObjectUDFDefinition: 0,
	ObjectUDLDefinition: 0,
	ObjectMACPool:       0,

	ObjectDeviceSubtype: 1,
	ObjectTag:           1,

	ObjectLocation:   2,
	ObjectIP4Block:   2,
	ObjectIP4Network: 2,
	ObjectIP6Block:   2,
	ObjectIP6Network: 2,

	ObjectDNSZone: 3,
	ObjectACL:     3,

	ObjectExternalHostRecord: 4,

	ObjectHostRecord: 5,
	ObjectIP4Address: 5,
	ObjectIP6Address: 5,
	ObjectIP4Group:   5,
	ObjectMACAddress: 5,

	ObjectAliasRecord:   6,
	ObjectMXRecord:      6,
	ObjectSRVRecord:     6,
	ObjectTXTRecord:     6,
	ObjectGenericRecord: 6,

	ObjectDevice: 7,

	ObjectIPv4DHCPRange:            8,
	ObjectIPv6DHCPRange:            8,
	ObjectDHCPv4ClientClass:        8,
	ObjectDHCPDeploymentRole:       8,
	ObjectDNSDeploymentRole:        8,
	ObjectDHCPv4ClientDeployOption: 8,
	ObjectDHCPv4ServiceDeployOpt:   8,
	ObjectDeviceAddress:            8,
	ObjectResourceTag:              8,
	ObjectUserDefinedLink:          8,
	ObjectAccessRight:              8,
}

// Phase returns the creation phase for an object type. Unknown types land in
// the last phase so a taxonomy gap degrades ordering instead of breaking it.
func Phase(t ObjectType) int {
	if p, ok := phaseByType[t]; ok {
		return p
	}
	return NumPhases - 1
}

// KnownType reports whether t belongs to the taxonomy (barrier excluded).
func KnownType(t ObjectType) bool {
	_, ok := phaseByType[t]
	return ok
}
