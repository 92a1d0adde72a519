// Package deployer points the live configuration directory at a verified cache
// entry and asks the DNS server to reload.
//
// The live directory holds one symbolic link per configuration file. Links whose
// targets lie inside the cache root are owned by the deployer; everything else
// in the directory belongs to someone else and is never modified.
package deployer
