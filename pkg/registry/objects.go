package registry

// ipsoSensor holds the resources shared by the IPSO smart object sensors.
var ipsoSensor = map[int]string{
	5601: "minMeasuredValue",
	5602: "maxMeasuredValue",
	5603: "minRangeValue",
	5604: "maxRangeValue",
	5605: "resetMinMaxMeasuredValues",
	5700: "sensorValue",
	5701: "units",
	5750: "appType",
}

func withIPSO(extra map[int]string) map[int]string {
	m := make(map[int]string, len(ipsoSensor)+len(extra))
	for id, name := range ipsoSensor {
		m[id] = name
	}
	for id, name := range extra {
		m[id] = name
	}
	return m
}

// builtinObjects is the set of OMA and IPSO objects known without configuration.
var builtinObjects = []ObjectDef{
	{ID: 0, Name: "lwm2mSecurity", Resources: map[int]string{
		0:  "lwm2mServerURI",
		1:  "bootstrapServer",
		2:  "securityMode",
		3:  "pubKeyOrId",
		4:  "serverPubKey",
		5:  "secretKey",
		10: "shortServerId",
		11: "clientHoldOffTime",
	}},
	{ID: 1, Name: "lwm2mServer", Resources: map[int]string{
		0: "shortServerId",
		1: "lifetime",
		2: "defaultMinPeriod",
		3: "defaultMaxPeriod",
		4: "disable",
		5: "disableTimeout",
		6: "notificationStoring",
		7: "binding",
		8: "registrationUpdateTrigger",
	}},
	{ID: 2, Name: "accessControl", Resources: map[int]string{
		0: "objectId",
		1: "objectInstanceId",
		2: "ACL",
		3: "accessControlOwner",
	}},
	{ID: 3, Name: "device", Resources: map[int]string{
		0:  "manuf",
		1:  "model",
		2:  "serial",
		3:  "firmwareVer",
		4:  "reboot",
		5:  "factoryReset",
		6:  "availPowerSrc",
		7:  "powerSrcVoltage",
		8:  "powerSrcCurrent",
		9:  "battLevel",
		10: "memFree",
		11: "errCode",
		12: "resetErrCode",
		13: "currentTime",
		14: "UTCOffset",
		15: "timezone",
		16: "supportedBinding",
		17: "devType",
		18: "hwVer",
		19: "swVer",
		20: "battStatus",
		21: "memTotal",
	}},
	{ID: 4, Name: "connMonitor", Resources: map[int]string{
		0:  "nwBearer",
		1:  "availNwBearer",
		2:  "radioSS",
		3:  "linkQuality",
		4:  "ip",
		5:  "routeIp",
		6:  "linkUtil",
		7:  "apn",
		8:  "cellId",
		9:  "smnc",
		10: "smcc",
	}},
	{ID: 5, Name: "firmware", Resources: map[int]string{
		0: "package",
		1: "packageURI",
		2: "update",
		3: "state",
		5: "updateResult",
		6: "pkgName",
		7: "pkgVer",
	}},
	{ID: 6, Name: "location", Resources: map[int]string{
		0: "lat",
		1: "lon",
		2: "alt",
		3: "uncertainty",
		4: "velocity",
		5: "timestamp",
	}},
	{ID: 7, Name: "connStatistics", Resources: map[int]string{
		0: "SMSTxCounter",
		1: "SMSRxCounter",
		2: "txData",
		3: "rxData",
		4: "maxMessageSize",
		5: "averageMessageSize",
		6: "startOrReset",
		7: "stop",
		8: "collectionPeriod",
	}},
	{ID: 3303, Name: "temperature", Resources: withIPSO(nil)},
	{ID: 3304, Name: "humidity", Resources: withIPSO(nil)},
	{ID: 3311, Name: "lightControl", Resources: map[int]string{
		5701: "units",
		5706: "colour",
		5750: "appType",
		5805: "cumulativeActivePower",
		5820: "powerFactor",
		5850: "onOff",
		5851: "dimmer",
		5852: "onTime",
	}},
	{ID: 3313, Name: "accelerometer", Resources: withIPSO(map[int]string{
		5702: "xValue",
		5703: "yValue",
		5704: "zValue",
	})},
	{ID: 3323, Name: "pressure", Resources: withIPSO(nil)},
}
